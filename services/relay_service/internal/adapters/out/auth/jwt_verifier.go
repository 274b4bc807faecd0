package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
)

var errMissingSubject = errors.New("token has no subject")

// HMACVerifier 共享密钥签发的会话令牌，sub 即用户标识
type HMACVerifier struct {
	secret []byte
	issuer string
}

func NewHMACVerifier(secret, issuer string) (*HMACVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("hmac verifier: secret is empty")
	}
	return &HMACVerifier{secret: []byte(secret), issuer: issuer}, nil
}

var _ out.TokenVerifier = (*HMACVerifier)(nil)

func (v *HMACVerifier) Verify(ctx context.Context, tokenString string) (entity.UserID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	return subjectOf(claims)
}

// Issue 签发令牌，压测工具和测试用
func (v *HMACVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func subjectOf(claims *jwt.RegisteredClaims) (entity.UserID, error) {
	if claims.Subject == "" {
		return "", errMissingSubject
	}
	return entity.UserID(claims.Subject), nil
}
