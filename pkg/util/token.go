package util

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims JWT 载荷。
// 认证体系是外部协作方，这里只消费"合法会话标识用户 X"这一事实。
type Claims struct {
	UserUUID string `json:"user_uuid"`
	jwt.RegisteredClaims
}

var (
	// ErrTokenInvalid 表示 token 非法或已过期。
	ErrTokenInvalid = errors.New("token is invalid")
)

// jwtSecret 签名密钥。与外部认证服务约定同一密钥。
func jwtSecret() []byte {
	if s := os.Getenv("JWT_SECRET"); s != "" {
		return []byte(s)
	}
	return []byte("devtinder-dev-secret")
}

// ParseToken 解析并校验 JWT，返回载荷。
// 任何解析/校验失败统一折叠为 ErrTokenInvalid，不向客户端暴露细节。
func ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return jwtSecret(), nil
	})
	if err != nil || !token.Valid || claims.UserUUID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// GenerateToken 签发 JWT（测试与本地调试用，线上签发在认证服务侧）。
func GenerateToken(userUUID string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserUUID: userUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret())
}
