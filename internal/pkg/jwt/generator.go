// internal/pkg/jwt/generator.go
package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Generator mints HS256 tokens shaped like the provider's. The service never
// issues tokens to browsers; this backs the in-process provider double.
type Generator struct {
	secret []byte
	issuer string
	Ttl    time.Duration
}

func NewGenerator(secret, issuer string, ttl time.Duration) *Generator {
	return &Generator{
		secret: []byte(secret),
		issuer: issuer,
		Ttl:    ttl,
	}
}

// Generate creates a signed token for userID at the given assurance level.
func (g *Generator) Generate(userID, email, sessionID, aal string, methods ...string) (string, error) {
	if len(g.secret) == 0 {
		return "", fmt.Errorf("jwt generator has empty secret")
	}

	now := time.Now()
	amr := make([]AMREntry, 0, len(methods))
	for _, m := range methods {
		amr = append(amr, AMREntry{Method: m, Timestamp: now.Unix()})
	}

	claims := &Claims{
		Email:     email,
		Role:      "authenticated",
		AAL:       aal,
		AMR:       amr,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    g.issuer,
			Subject:   userID,
			Audience:  []string{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(now.Add(g.Ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
