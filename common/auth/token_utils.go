package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// RoleAdmin is the role claim value that grants admin access.
const RoleAdmin = "admin"

// ContextKey is the gin context key the authenticated Principal is stored
// under.
const ContextKey = "principal"

// Principal is the authenticated caller as seen by the checkout pipeline.
type Principal struct {
	AccountID string
	IsAdmin   bool
}

// Verifier validates HS256 access tokens issued by the auth service.
type Verifier struct {
	secretKey []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secretKey: []byte(secret)}
}

// ParseAndValidateToken parses a JWT token string and returns its claims.
// If expectedType is non-empty and the token carries a "typ" claim, it must
// match.
func (v *Verifier) ParseAndValidateToken(tokenStr, expectedType string) (jwt.MapClaims, error) {
	if len(v.secretKey) == 0 {
		return nil, fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secretKey, nil
	})
	if err != nil || token == nil || !token.Valid {
		return nil, fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	if expectedType != "" {
		if typ, present := claims["typ"]; present {
			if s, ok := typ.(string); !ok || s != expectedType {
				return nil, fmt.Errorf("invalid token type")
			}
		}
	}
	return claims, nil
}

// PrincipalFromClaims reads the account id from "user_id" (falling back to
// "sub" and "id") and the admin flag from "role" or "isAdmin".
func PrincipalFromClaims(claims jwt.MapClaims) (Principal, error) {
	var id string
	for _, key := range []string{"user_id", "sub", "id"} {
		if s, ok := claims[key].(string); ok && s != "" {
			id = s
			break
		}
	}
	if id == "" {
		return Principal{}, fmt.Errorf("token has no subject")
	}

	p := Principal{AccountID: id}
	if role, ok := claims["role"].(string); ok && role == RoleAdmin {
		p.IsAdmin = true
	}
	if admin, ok := claims["isAdmin"].(bool); ok && admin {
		p.IsAdmin = true
	}
	return p, nil
}
