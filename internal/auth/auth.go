package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"docrag/internal/quota"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the user id and the plan tier of the account management system.
type Claims struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
	jwt.RegisteredClaims
}

// Identity is the authenticated user behind a request.
type Identity struct {
	UserID string
	Plan   quota.Plan
}

// Verifier signs and validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("JWT_SECRET not set")
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

func (v *Verifier) GenerateToken(userID string, plan quota.Plan, duration time.Duration) (string, error) {
	logrus.WithField("user_id", userID).Debug("generating JWT token")

	now := v.now()
	claims := Claims{
		UserID: userID,
		Plan:   string(plan),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   err,
		}).Error("failed to sign JWT token")
		return "", err
	}
	return signed, nil
}

// Validate parses tokenStr and returns the identity it carries. Unknown plans fall back to free.
func (v *Verifier) Validate(tokenStr string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		logrus.WithError(err).Warn("failed to parse JWT token")
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		logrus.Warn("JWT token is not valid")
		return Identity{}, ErrInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	return Identity{UserID: userID, Plan: quota.ParsePlan(claims.Plan)}, nil
}
