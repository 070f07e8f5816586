package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SessionTTL 重连令牌有效期
	SessionTTL = 5 * time.Minute

	tokenIssuer = "snapsync-server"

	// 开发环境默认密钥，生产环境应设置环境变量
	devSecret = "snapsync-dev-secret-change-in-production"
)

var ErrInvalidToken = errors.New("无效的会话令牌")

// Claims 重连令牌携带的客户端槽位
type Claims struct {
	ClientNum int    `json:"client_num"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer 签发与校验重连令牌
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

// NewTokenIssuer 从名为 secretEnv 的环境变量读取签名密钥
func NewTokenIssuer(secretEnv string) *TokenIssuer {
	secret := ""
	if secretEnv != "" {
		secret = os.Getenv(secretEnv)
	}
	if secret == "" {
		secret = devSecret
	}
	return &TokenIssuer{key: []byte(secret), ttl: SessionTTL}
}

// Generate 为客户端槽位签发令牌
func (t *TokenIssuer) Generate(clientNum int, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		ClientNum: clientNum,
		Name:      name,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   fmt.Sprintf("client-%d", clientNum),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// Verify 校验令牌并返回其声明
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.key, nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
