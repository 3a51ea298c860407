package jwt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/magabrotheeeer/host-lifecycle/internal/lib/clock"
	"github.com/magabrotheeeer/host-lifecycle/internal/models"
)

const setupPurpose = "credential_setup"

// DefaultSetupTTL время жизни ссылки установки пароля.
const DefaultSetupTTL = 72 * time.Hour

type setupClaims struct {
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

// SetupTokenIssuer выпускает токены установки пароля. Токен привязан к текущему
// хешу пароля и времени последнего входа, поэтому перестаёт действовать после
// смены пароля или входа в аккаунт.
type SetupTokenIssuer struct {
	secretKey string
	ttl       time.Duration
	clock     clock.Clock
}

// NewSetupTokenIssuer создаёт выпускающего с ключом и временем жизни.
// При nil clk используются системные часы.
func NewSetupTokenIssuer(secretKey string, ttl time.Duration, clk clock.Clock) *SetupTokenIssuer {
	if ttl <= 0 {
		ttl = DefaultSetupTTL
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &SetupTokenIssuer{secretKey: secretKey, ttl: ttl, clock: clk}
}

// Issue выпускает токен для пользователя.
func (s *SetupTokenIssuer) Issue(user *models.User) (string, error) {
	now := s.clock.Now()
	claims := setupClaims{
		Purpose:     setupPurpose,
		Fingerprint: s.fingerprint(user),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.secretKey))
}

// Verify проверяет, что токен выпущен для этого пользователя и его текущего пароля.
func (s *SetupTokenIssuer) Verify(user *models.User, token string) bool {
	if user == nil || token == "" {
		return false
	}
	parsed, err := jwt.ParseWithClaims(token, &setupClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(s.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.clock.Now))
	if err != nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(*setupClaims)
	if !ok || claims.Purpose != setupPurpose || claims.Subject != user.ID {
		return false
	}
	return hmac.Equal([]byte(claims.Fingerprint), []byte(s.fingerprint(user)))
}

func (s *SetupTokenIssuer) fingerprint(user *models.User) string {
	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(user.ID))
	mac.Write([]byte{0})
	mac.Write([]byte(user.PasswordHash))
	mac.Write([]byte{0})
	if user.LastLoginAt != nil {
		mac.Write([]byte(strconv.FormatInt(user.LastLoginAt.UnixMicro(), 10)))
	}
	return hex.EncodeToString(mac.Sum(nil))[:32]
}
