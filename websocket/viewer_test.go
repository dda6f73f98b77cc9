package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleemdev/careverse-hq-sub001/config"
)

func testWSConfig() *config.WebSocketConfig {
	return &config.WebSocketConfig{
		WriteTimeout:    2,
		PingInterval:    30,
		ActivityTimeout: 60,
	}
}

func TestViewerCanAccess(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		action  string
		channel string
		want    bool
	}{
		{
			name:    "exact scope match",
			scopes:  []string{"view:approval_update"},
			action:  "view",
			channel: "approval_update",
			want:    true,
		},
		{
			name:    "missing scope denied",
			scopes:  []string{"view:approval_update"},
			action:  "view",
			channel: "budget_update",
			want:    false,
		},
		{
			name:    "channel wildcard",
			scopes:  []string{"view:*"},
			action:  "view",
			channel: "org_update",
			want:    true,
		},
		{
			name:    "prefix wildcard",
			scopes:  []string{"view:a*"},
			action:  "view",
			channel: "attendance_update",
			want:    true,
		},
		{
			name:    "prefix wildcard misses other channels",
			scopes:  []string{"view:a*"},
			action:  "view",
			channel: "budget_update",
			want:    false,
		},
		{
			name:    "action must match",
			scopes:  []string{"admin:approval_update"},
			action:  "view",
			channel: "approval_update",
			want:    false,
		},
		{
			name:    "empty scopes deny everything",
			scopes:  nil,
			action:  "view",
			channel: "approval_update",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vs := NewViewerSession("v1", nil, testWSConfig(), &CustomClaims{Scopes: tt.scopes}, nil)
			assert.Equal(t, tt.want, vs.CanAccess(tt.action, tt.channel))
		})
	}
}

func TestViewerCanAccessWithoutClaims(t *testing.T) {
	// Auth disabled: nil claims allow everything.
	vs := NewViewerSession("v1", nil, testWSConfig(), nil, nil)
	assert.True(t, vs.CanAccess("view", "approval_update"))
}

func TestViewerChannelSelection(t *testing.T) {
	vs := NewViewerSession("v1", nil, testWSConfig(), nil, []string{"approval_update"})

	assert.True(t, vs.WantsChannel("approval_update"))
	assert.False(t, vs.WantsChannel("budget_update"))

	vs.SetChannels([]string{"budget_update", "org_update"})
	assert.False(t, vs.WantsChannel("approval_update"))
	assert.True(t, vs.WantsChannel("budget_update"))
	assert.True(t, vs.WantsChannel("org_update"))
}

func signTestToken(t *testing.T, secret string, claims CustomClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "test-secret", RevocationListKey: "revoked-token"}
	validator := NewJWTValidator(cfg, nil)

	claims := CustomClaims{
		Scopes: []string{"view:*"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "viewer-42",
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	got, err := validator.ValidateToken(context.Background(), signTestToken(t, "test-secret", claims))
	require.NoError(t, err)
	assert.Equal(t, "viewer-42", got.Subject)
	assert.Equal(t, []string{"view:*"}, got.Scopes)
}

func TestValidateTokenRejectsBadSignature(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "test-secret"}
	validator := NewJWTValidator(cfg, nil)

	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	_, err := validator.ValidateToken(context.Background(), signTestToken(t, "other-secret", claims))
	assert.Error(t, err)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "test-secret"}
	validator := NewJWTValidator(cfg, nil)

	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}

	_, err := validator.ValidateToken(context.Background(), signTestToken(t, "test-secret", claims))
	assert.Error(t, err)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	cfg := &config.AuthConfig{JWTSecret: "test-secret"}
	validator := NewJWTValidator(cfg, nil)

	_, err := validator.ValidateToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}
