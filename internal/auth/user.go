package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// User is an office member. Only Role and Avatar change after registration.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Avatar string `json:"avatar"`
}

// Credential is a user together with the stored password hash. PasswordHash
// is empty for accounts created without a password.
type Credential struct {
	User         User
	PasswordHash string
}

// UserStore persists users and their credentials.
type UserStore interface {
	CreateUser(ctx context.Context, u User, passwordHash string) (User, error)
	FindCredential(ctx context.Context, email string) (Credential, error)
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail is the same loose check the registration form performs.
func ValidEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}

// DefaultAvatar builds the generated initials avatar for name.
func DefaultAvatar(name string) string {
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=0e1b2e&color=fff", url.QueryEscape(name))
}

// Initials returns up to two upper-case initials, used where avatars cannot be rendered.
func (u User) Initials() string {
	var out []rune
	for _, part := range strings.Fields(u.Name) {
		r := []rune(part)
		out = append(out, []rune(strings.ToUpper(string(r[0])))...)
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}
