package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/jghoshh/habitual/backend/apperrors"
)

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserID string
	Email  string
}

// Verifier checks HMAC-signed JWTs issued by the identity provider.
type Verifier struct {
	signingKey []byte
}

// NewVerifier returns a Verifier accepting tokens signed with signingKey.
func NewVerifier(signingKey string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey)}
}

// Verify parses tokenString and returns the identity it carries. Every
// failure matches apperrors.ErrAuth.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("missing token: %w", apperrors.ErrAuth)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok && ve.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("expired token: %w", apperrors.ErrAuth)
		}
		return nil, fmt.Errorf("invalid token: %w", apperrors.ErrAuth)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", apperrors.ErrAuth)
	}

	userID, _ := claims["id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return nil, fmt.Errorf("token has no subject: %w", apperrors.ErrAuth)
	}

	email, _ := claims["email"].(string)
	return &Identity{UserID: userID, Email: email}, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// CreateAuthToken mints a token for userID valid for ttl. It stands in for
// the identity provider in tests and local development.
func CreateAuthToken(signingKey, userID, email string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if email != "" {
		claims["email"] = email
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString([]byte(signingKey))
	if err != nil {
		return "", fmt.Errorf("failed to create auth token: %w", err)
	}

	return signedToken, nil
}
