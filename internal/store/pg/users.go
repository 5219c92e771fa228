package pg

import (
	"context"
	"database/sql"

	"casedesk.org/internal/auth"
)

type userRow struct {
	ID       string
	Name     string
	Email    string
	Role     string
	Avatar   sql.NullString
	Password sql.NullString
}

func (r userRow) user() auth.User {
	u := auth.User{ID: r.ID, Name: r.Name, Email: r.Email, Role: auth.Role(r.Role), Avatar: r.Avatar.String}
	if u.Avatar == "" {
		u.Avatar = auth.DefaultAvatar(u.Name)
	}
	return u
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, email, role, avatar
		from users
		order by created_at, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.User
	for rows.Next() {
		var r userRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Email, &r.Role, &r.Avatar); err != nil {
			return nil, err
		}
		out = append(out, r.user())
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, u auth.User, passwordHash string) (auth.User, error) {
	u.Email = auth.NormalizeEmail(u.Email)
	err := s.db.QueryRowContext(ctx, `
		insert into users (name, email, password, role, avatar)
		values ($1, $2, $3, $4, $5)
		returning id
	`, u.Name, u.Email, nullIfEmpty(passwordHash), string(u.Role), nullIfEmpty(u.Avatar)).Scan(&u.ID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, auth.ErrConflict
		}
		return auth.User{}, err
	}
	return u, nil
}

func (s *Store) FindCredential(ctx context.Context, email string) (auth.Credential, error) {
	var r userRow
	err := s.db.QueryRowContext(ctx, `
		select id, name, email, role, avatar, password
		from users
		where email = $1
	`, auth.NormalizeEmail(email)).Scan(&r.ID, &r.Name, &r.Email, &r.Role, &r.Avatar, &r.Password)
	if err != nil {
		return auth.Credential{}, notFound(err, auth.ErrNotFound)
	}
	return auth.Credential{User: r.user(), PasswordHash: r.Password.String}, nil
}
