// Package session verifies credentials and keeps login sessions.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"casedesk.org/internal/auth"
	"casedesk.org/internal/obs"
)

// ErrNotFound is returned by a Store for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// Record is what a Store keeps per session.
type Record struct {
	ID        string    `json:"id"`
	User      auth.User `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store persists session records until they expire.
type Store interface {
	Save(ctx context.Context, rec Record, ttl time.Duration) error
	Load(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
}

// Session is an established login handed back to the client.
type Session struct {
	Token     string    `json:"token"`
	User      auth.User `json:"user"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Gateway checks credentials, registers users and manages sessions.
type Gateway struct {
	users    auth.UserStore
	sessions Store
	tokens   *auth.TokenIssuer
	log      *zap.Logger
}

// NewGateway wires the gateway.
func NewGateway(users auth.UserStore, sessions Store, tokens *auth.TokenIssuer, log *zap.Logger) *Gateway {
	return &Gateway{users: users, sessions: sessions, tokens: tokens, log: obs.OrNop(log)}
}

// Authenticate returns the user owning email when password matches. Failures
// are ErrEmailNotFound, ErrNoCredentialSet or ErrInvalidCredential.
func (g *Gateway) Authenticate(ctx context.Context, email, password string) (auth.User, error) {
	cred, err := g.users.FindCredential(ctx, auth.NormalizeEmail(email))
	if errors.Is(err, auth.ErrNotFound) {
		return auth.User{}, auth.ErrEmailNotFound
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("find credential: %w", err)
	}
	if err := auth.VerifyPassword(cred.PasswordHash, password); err != nil {
		g.log.Info("login rejected", zap.String("user_id", cred.User.ID), zap.Error(err))
		return auth.User{}, err
	}
	return cred.User, nil
}

// Register creates an account. An empty role defaults to INTERN.
func (g *Gateway) Register(ctx context.Context, name, email, password, role string) (auth.User, error) {
	name = strings.TrimSpace(name)
	email = auth.NormalizeEmail(email)
	if name == "" {
		return auth.User{}, fmt.Errorf("%w: name is required", auth.ErrInvalidInput)
	}
	if !auth.ValidEmail(email) {
		return auth.User{}, fmt.Errorf("%w: invalid email", auth.ErrInvalidInput)
	}
	if password == "" {
		return auth.User{}, fmt.Errorf("%w: password is required", auth.ErrInvalidInput)
	}
	r := auth.RoleIntern
	if strings.TrimSpace(role) != "" {
		parsed, err := auth.ParseRole(role)
		if err != nil {
			return auth.User{}, err
		}
		r = parsed
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return auth.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := g.users.CreateUser(ctx, auth.User{
		Name:   name,
		Email:  email,
		Role:   r,
		Avatar: auth.DefaultAvatar(name),
	}, hash)
	if err != nil {
		return auth.User{}, fmt.Errorf("create user: %w", err)
	}
	g.log.Info("user registered", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	return u, nil
}

// Login is Authenticate followed by PersistSession.
func (g *Gateway) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := g.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	return g.PersistSession(ctx, u)
}

// PersistSession establishes a session for user and returns its token.
func (g *Gateway) PersistSession(ctx context.Context, user auth.User) (Session, error) {
	id := uuid.NewString()
	token, exp, err := g.tokens.Issue(user, id)
	if err != nil {
		return Session{}, err
	}
	rec := Record{ID: id, User: user, ExpiresAt: exp}
	if err := g.sessions.Save(ctx, rec, g.tokens.TTL()); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	return Session{Token: token, User: user, ExpiresAt: exp}, nil
}

// CurrentSession restores the session behind token.
func (g *Gateway) CurrentSession(ctx context.Context, token string) (Session, error) {
	claims, err := g.tokens.Parse(token)
	if err != nil {
		return Session{}, err
	}
	rec, err := g.sessions.Load(ctx, claims.SessionID())
	if errors.Is(err, ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if rec.User.ID != claims.Subject {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{Token: token, User: rec.User, ExpiresAt: rec.ExpiresAt}, nil
}

// ClearSession ends the session behind token. Clearing an unknown session
// is not an error.
func (g *Gateway) ClearSession(ctx context.Context, token string) error {
	claims, err := g.tokens.Parse(token)
	if err != nil {
		return err
	}
	if err := g.sessions.Delete(ctx, claims.SessionID()); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
