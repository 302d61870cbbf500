package domain

import "strings"

// User is the identity decoded from a session token's claims.
// Nothing here has been verified; the backend that issued the token is the
// only party that trusts it.
type User struct {
	Subject string
	Avatar  string
	Claims  map[string]any
}

// UserFromClaims extracts the well-known fields from a claims object.
func UserFromClaims(claims map[string]any) *User {
	u := &User{Claims: claims}
	if sub, ok := claims["sub"].(string); ok {
		u.Subject = sub
	}
	if avatar, ok := claims["avatar"].(string); ok {
		u.Avatar = avatar
	}
	return u
}

// Initial returns the upper-cased first letter of the subject, used as the
// avatar fallback in the header.
func (u *User) Initial() string {
	if u == nil || u.Subject == "" {
		return "?"
	}
	r := []rune(u.Subject)
	return strings.ToUpper(string(r[0]))
}
