package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/response"
)

const userIDContextKey = "auth_user_id"

// JWTAuthMiddleware 用户鉴权中间件类型，便于依赖注入时区分其他中间件。
type JWTAuthMiddleware gin.HandlerFunc

// NewJWTAuthMiddleware 构造用户鉴权中间件。
func NewJWTAuthMiddleware(cfg config.AuthConfig) JWTAuthMiddleware {
	return JWTAuthMiddleware(JWTAuth(cfg))
}

// JWTAuth 校验 Bearer 令牌并把用户 ID 写入请求上下文。
// WebSocket 握手不便携带 Header，允许用 query 参数 token 兜底。
func JWTAuth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			response.Error(c, 401, "未登录")
			c.Abort()
			return
		}
		userID, err := parseSubject(raw, cfg)
		if err != nil {
			response.Error(c, 401, "登录已过期，请重新登录")
			c.Abort()
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return c.Query("token")
}

func parseSubject(raw string, cfg config.AuthConfig) (int64, error) {
	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}
	if cfg.Issuer != "" && claims.Issuer != cfg.Issuer {
		return 0, errors.New("issuer mismatch")
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

// UserID 读取中间件写入的用户 ID。未经过鉴权中间件时第二个返回值为 false。
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
