package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Nikonomics/PostAcutePulse-sub015/internal/utils"
	"github.com/golang-jwt/jwt/v5"
)

const TokenTTL = 12 * time.Hour

var ErrMissingSecret = errors.New("TOKEN_SECRET is empty")

// TokenService mints and verifies the HS256 bearer tokens used by the API.
// It implements middleware.TokenVerifier.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = TokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

type claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// MintToken issues a signed token for the given user.
func (s *TokenService) MintToken(userID, role string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    "postacutepulse",
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyToken parses and validates a bearer token, returning the identity it carries.
func (s *TokenService) VerifyToken(tokenStr string) (utils.TokenData, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenStr, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return utils.TokenData{}, err
	}
	if !token.Valid || c.Subject == "" {
		return utils.TokenData{}, errors.New("invalid token")
	}

	data := utils.TokenData{
		UserID: c.Subject,
		Role:   c.Role,
	}
	if c.ExpiresAt != nil {
		data.ExpiresAt = c.ExpiresAt.Time
	}
	return data, nil
}
