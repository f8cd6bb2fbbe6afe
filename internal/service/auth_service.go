package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Wei-Shaw/muse2api/internal/config"
	"github.com/Wei-Shaw/muse2api/internal/pkg/logger"
)

// ErrInvalidToken 表示访问令牌无效或过期。
var ErrInvalidToken = errors.New("invalid access token")

// AuthService 处理登录回调与访问令牌。身份由上游 OAuth 提供方确认，
// 本服务只负责 find-or-create 用户并签发自己的 JWT。
type AuthService struct {
	userRepo      UserRepository
	creditService *CreditService
	cfg           config.AuthConfig
}

// NewAuthService 创建鉴权服务。
func NewAuthService(userRepo UserRepository, creditService *CreditService, cfg config.AuthConfig) *AuthService {
	return &AuthService{userRepo: userRepo, creditService: creditService, cfg: cfg}
}

// LoginCallbackInput 登录回调入参（上游 OAuth 已验证过的身份信息）。
type LoginCallbackInput struct {
	Email string `json:"email" binding:"required,email"`
	Name  string `json:"name"`
}

// LoginResult 登录结果。
type LoginResult struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// LoginCallback 按邮箱 find-or-create 用户并签发令牌。
// 新用户落在免费档并立即发放当日额度。
func (s *AuthService) LoginCallback(ctx context.Context, input LoginCallbackInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		now := time.Now()
		user = &User{
			Email:            email,
			Name:             strings.TrimSpace(input.Name),
			Plan:             PlanFree,
			RenewableCredits: s.creditService.PlanCredits(PlanFree),
			NextResetAt:      s.creditService.NextReset(PlanFree, now),
			CreatedAt:        now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		logger.LegacyPrintf("service.auth", "[Auth] 注册新用户 id=%d email=%s", user.ID, email)
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Token: token}, nil
}

// IssueToken 为用户签发 HS256 JWT。
func (s *AuthService) IssueToken(userID int64) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		Issuer:    s.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
