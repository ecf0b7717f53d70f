package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	user, err := CreateUser("tester", "tester@example.com", "supersecret")
	require.NoError(t, err)

	assert.Equal(t, "tester", user.Name)
	assert.Equal(t, ROLE_USER, user.Role)
	assert.Equal(t, STATUS_INACTIVE, user.Status)
	assert.NotEqual(t, "supersecret", user.Password)
	assert.True(t, user.CheckPassword("supersecret"))
	assert.False(t, user.CheckPassword("wrong"))
}

func TestCreateUser_Validation(t *testing.T) {
	_, err := CreateUser("ab", "tester@example.com", "supersecret")
	assert.Error(t, err, "name below minimum length")

	_, err = CreateUser("tester", "not-an-email", "supersecret")
	assert.Error(t, err, "invalid email")
}

func TestGenerateActivationToken(t *testing.T) {
	user := &User{Name: "tester"}
	require.NoError(t, user.GenerateActivationToken())

	assert.Len(t, user.ActivationToken, 32)
	require.NotNil(t, user.ActivationSentAt)
	assert.WithinDuration(t, time.Now(), *user.ActivationSentAt, time.Minute)

	// tokens are random per call
	first := user.ActivationToken
	require.NoError(t, user.GenerateActivationToken())
	assert.NotEqual(t, first, user.ActivationToken)
}

func TestSetPassword(t *testing.T) {
	user := &User{Password: "old-hash"}
	require.NoError(t, user.SetPassword("newpassword"))

	assert.NotEqual(t, "old-hash", user.Password)
	assert.True(t, user.CheckPassword("newpassword"))
}

func TestHasStripeCustomer(t *testing.T) {
	user := &User{}
	assert.False(t, user.HasStripeCustomer())

	empty := ""
	user.StripeCustomerID = &empty
	assert.False(t, user.HasStripeCustomer())

	id := "cus_123"
	user.StripeCustomerID = &id
	assert.True(t, user.HasStripeCustomer())
}

func TestPasswordResetToken(t *testing.T) {
	token, err := NewPasswordResetToken(7)
	require.NoError(t, err)

	assert.Equal(t, uint(7), token.UserID)
	assert.Len(t, token.Token, 48)
	assert.True(t, token.IsRedeemable())

	used := time.Now()
	token.UsedAt = &used
	assert.False(t, token.IsRedeemable(), "used tokens cannot be redeemed")

	expired, err := NewPasswordResetToken(7)
	require.NoError(t, err)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	assert.False(t, expired.IsRedeemable(), "expired tokens cannot be redeemed")
}
