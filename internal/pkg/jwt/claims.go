// internal/pkg/jwt/claims.go
package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

const (
	AAL1 = "aal1"
	AAL2 = "aal2"
)

// AMREntry is one authentication method recorded on the session.
type AMREntry struct {
	Method    string `json:"method"`
	Timestamp int64  `json:"timestamp"`
}

// Claims represents the access token issued by the auth provider.
type Claims struct {
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	AAL       string     `json:"aal,omitempty"`
	AMR       []AMREntry `json:"amr,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// AssuranceLevel returns the aal claim, treating a missing claim as aal1.
func (c *Claims) AssuranceLevel() string {
	if c.AAL == "" {
		return AAL1
	}
	return c.AAL
}

// Methods lists the amr methods in token order.
func (c *Claims) Methods() []string {
	methods := make([]string, 0, len(c.AMR))
	for _, m := range c.AMR {
		methods = append(methods, m.Method)
	}
	return methods
}

// HasMethod checks if the session was authenticated with method.
func (c *Claims) HasMethod(method string) bool {
	for _, m := range c.AMR {
		if m.Method == method {
			return true
		}
	}
	return false
}
