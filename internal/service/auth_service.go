package service

import (
	"errors"
	"strings"
	"time"

	"github.com/tripnest/paycore/internal/config"
	"github.com/tripnest/paycore/internal/constants"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid token 无效或已过期
	ErrTokenInvalid = errors.New("token invalid")
	// ErrJWTSecretMissing 未配置 JWT 密钥
	ErrJWTSecretMissing = errors.New("jwt secret missing")
)

// JWTClaims 管理端 JWT 声明
type JWTClaims struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService 管理端令牌签发与校验
type AuthService struct {
	cfg config.JWTConfig
	now func() time.Time
}

// NewAuthService 创建令牌服务
func NewAuthService(cfg config.JWTConfig) *AuthService {
	return &AuthService{cfg: cfg, now: time.Now}
}

// GenerateJWT 为运维人员签发管理端 Token
func (s *AuthService) GenerateJWT(operator string) (string, time.Time, error) {
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return "", time.Time{}, ErrJWTSecretMissing
	}
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return "", time.Time{}, errors.New("operator is required")
	}
	expireHours := s.cfg.ExpireHours
	if expireHours <= 0 {
		expireHours = 24
	}
	now := s.now()
	expiresAt := now.Add(time.Duration(expireHours) * time.Hour)

	claims := JWTClaims{
		Operator: operator,
		Role:     constants.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   operator,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.cfg.SecretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseJWT 解析并校验管理端 Token
func (s *AuthService) ParseJWT(tokenString string) (*JWTClaims, error) {
	if strings.TrimSpace(s.cfg.SecretKey) == "" {
		return nil, ErrJWTSecretMissing
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(s.cfg.Issuer))
	}
	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.SecretKey), nil
	})
	if err != nil {
		return nil, errors.Join(ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Role != constants.RoleAdmin || strings.TrimSpace(claims.Operator) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
