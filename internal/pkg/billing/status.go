package billing

import (
	"strings"

	"github.com/Izza86/automated-video-platform-sub000/app/models"
)

// NormalizeStatus lowercases and trims a provider status string.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// ValidSubscriptionStatus reports whether the status belongs to the closed
// enum the ledger accepts. Incoming payloads are validated against this set
// before any write; unknown values are logged and dropped rather than stored.
func ValidSubscriptionStatus(status string) bool {
	switch NormalizeStatus(status) {
	case models.SubscriptionStatusActive,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusCanceled,
		models.SubscriptionStatusIncomplete,
		models.SubscriptionStatusIncompleteExpired,
		models.SubscriptionStatusPaused:
		return true
	default:
		return false
	}
}
