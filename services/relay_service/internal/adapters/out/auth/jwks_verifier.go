package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
)

// JWKSVerifier 校验外部身份服务签发的令牌，公钥从 JWKS 地址拉取并定时刷新
type JWKSVerifier struct {
	jwks   *keyfunc.JWKS
	issuer string
}

func NewJWKSVerifier(ctx context.Context, jwksURL, issuer string) (*JWKSVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   5 * time.Minute,
		RefreshRateLimit:  time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			zap.L().Error("JWKS refresh error", zap.String("url", jwksURL), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	return &JWKSVerifier{jwks: jwks, issuer: issuer}, nil
}

var _ out.TokenVerifier = (*JWKSVerifier)(nil)

func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (entity.UserID, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc, opts...); err != nil {
		return "", fmt.Errorf("token validation failed: %w", err)
	}
	return subjectOf(claims)
}

// Close 停止后台刷新
func (v *JWKSVerifier) Close() {
	v.jwks.EndBackground()
}
