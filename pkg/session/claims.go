package session

import (
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"mindseye/pkg/domain"
)

// ProfileFromToken derives a display profile from a JWT access token's claims.
// The signature is not checked: the backend remains the only verifier and the
// result is used for display only. The backend puts the account email in "sub".
func ProfileFromToken(token string) (domain.User, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domain.User{}, false
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return domain.User{}, false
	}
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return domain.User{}, false
	}
	var user domain.User
	if strings.Contains(sub, "@") {
		user.Email = sub
	} else {
		user.ID = sub
	}
	if email, ok := claims["email"].(string); ok && user.Email == "" {
		user.Email = strings.TrimSpace(email)
	}
	if name, ok := claims["name"].(string); ok {
		user.Name = strings.TrimSpace(name)
	}
	return user, true
}
