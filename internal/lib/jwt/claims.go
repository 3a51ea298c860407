package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const accessPurpose = "access"

// UserClaims данные пользователя, которые переносит токен доступа.
type UserClaims struct {
	UserID      string `json:"uid"`
	Email       string `json:"email"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
	IsHost      bool   `json:"is_host"`
}

// CustomClaims claims токена доступа.
type CustomClaims struct {
	UserClaims
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// GenerateToken выпускает токен доступа для пользователя.
func (j *MakerImpl) GenerateToken(user UserClaims) (string, error) {
	const op = "jwt.GenerateToken"
	now := j.now()
	claims := CustomClaims{
		UserClaims: user,
		Purpose:    accessPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.secretKey))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return signed, nil
}

// ParseToken проверяет подпись, срок действия и назначение токена доступа.
func (j *MakerImpl) ParseToken(tokenStr string) (*CustomClaims, error) {
	const op = "jwt.ParseToken"
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(j.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(j.now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%s: invalid token", op)
	}
	if claims.Purpose != accessPurpose {
		return nil, fmt.Errorf("%s: unexpected token purpose %q", op, claims.Purpose)
	}
	return claims, nil
}
