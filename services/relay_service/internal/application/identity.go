package application

import (
	"net/http"
	"strings"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/in"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// DefaultCookieName 身份服务写入的会话 cookie
const DefaultCookieName = "__session"

// IdentityResolverImpl 从握手请求中解析身份
type IdentityResolverImpl struct {
	verifier   out.TokenVerifier
	cookieName string
}

// NewIdentityResolver 创建身份解析器
func NewIdentityResolver(verifier out.TokenVerifier, cookieName string) in.IdentityResolver {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &IdentityResolverImpl{verifier: verifier, cookieName: cookieName}
}

// Resolve 只在握手时同步执行一次
func (r *IdentityResolverImpl) Resolve(req *http.Request) (entity.UserID, error) {
	token := r.extractToken(req)
	if token == "" {
		return "", relayerrors.NewAuthError(relayerrors.ErrMissingCredential, nil)
	}

	userID, err := r.verifier.Verify(req.Context(), token)
	if err != nil {
		return "", relayerrors.NewAuthError(relayerrors.ErrInvalidCredential, err)
	}
	if userID == "" {
		return "", relayerrors.NewAuthError(relayerrors.ErrInvalidCredential, nil)
	}
	return userID, nil
}

// extractToken 依次尝试 cookie、Authorization 头、token 查询参数
func (r *IdentityResolverImpl) extractToken(req *http.Request) string {
	if c, err := req.Cookie(r.cookieName); err == nil && c.Value != "" {
		return c.Value
	}

	bearer := req.Header.Get("Authorization")
	if strings.HasPrefix(bearer, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	}

	// 浏览器的 WebSocket 无法自定义请求头
	return req.URL.Query().Get("token")
}
