package sessionmgr

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

// ServiceClaims identifies the gateway itself to the AI orchestrator on
// the bus-adjacent internal endpoints, scoped to one village.
type ServiceClaims struct {
	VillageID kernel.VillageID `json:"village_id"`
	jwt.RegisteredClaims
}

// TokenService signs the short-lived bearer token the gateway presents
// for service-to-service calls, grounded on iam/auth's JWTService but
// narrowed to a single village claim instead of a full user principal.
type TokenService struct {
	secretKey []byte
	ttl       time.Duration
	issuer    string
}

func NewTokenService(cfg config.JWTConfig) *TokenService {
	return &TokenService{secretKey: []byte(cfg.SigningKey), ttl: cfg.TTL, issuer: cfg.Issuer}
}

func (s *TokenService) Sign(villageID kernel.VillageID) (string, error) {
	now := time.Now()
	claims := ServiceClaims{
		VillageID: villageID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   villageID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", ErrRegistry.New(CodeTokenGeneration).WithDetail("error", err.Error())
	}
	return signed, nil
}

func (s *TokenService) Validate(tokenString string) (*ServiceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ServiceClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrRegistry.New(CodeTokenValidation)
	}
	claims, ok := token.Claims.(*ServiceClaims)
	if !ok {
		return nil, ErrRegistry.New(CodeTokenValidation)
	}
	return claims, nil
}
