// Package jwt выпускает и разбирает JWT-токены платформы: токены доступа к API
// и одноразовые токены установки пароля, которые получает одобренный хост.
package jwt

import (
	"time"
)

// Maker выпускает и проверяет токены доступа.
type Maker interface {
	GenerateToken(claims UserClaims) (string, error)
	ParseToken(tokenStr string) (*CustomClaims, error)
}

// MakerImpl подписывает токены доступа секретным ключом (HS256).
type MakerImpl struct {
	secretKey string
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт MakerImpl с ключом и временем жизни токена.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: secretKey,
		tokenTTL:  ttl,
		now:       time.Now,
	}
}
