package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/quota"
)

func TestGenerateAndValidate(t *testing.T) {
	v, err := NewVerifier("secret")
	require.NoError(t, err)

	tok, err := v.GenerateToken("u1", quota.PlanPro, time.Hour)
	require.NoError(t, err)

	id, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Plan: quota.PlanPro}, id)
}

func TestValidateRejects(t *testing.T) {
	v, err := NewVerifier("secret")
	require.NoError(t, err)
	other, err := NewVerifier("other")
	require.NoError(t, err)

	foreign, err := other.GenerateToken("u1", quota.PlanFree, time.Hour)
	require.NoError(t, err)
	_, err = v.Validate(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := v.GenerateToken("u1", quota.PlanFree, -time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Validate(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUnknownPlanFallsBackToFree(t *testing.T) {
	v, err := NewVerifier("secret")
	require.NoError(t, err)
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:           "u2",
		Plan:             "enterprise",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	id, err := v.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, quota.PlanFree, id.Plan)
}

func TestMiddleware(t *testing.T) {
	v, err := NewVerifier("secret")
	require.NoError(t, err)
	tok, err := v.GenerateToken("u1", quota.PlanPremium, time.Hour)
	require.NoError(t, err)

	var seen Identity
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"valid", "Bearer " + tok, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, Identity{UserID: "u1", Plan: quota.PlanPremium}, seen)
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("")
	assert.Error(t, err)
}
