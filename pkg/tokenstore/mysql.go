package tokenstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-training/authz-server/pkg/core"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

//go:embed schema.sql
var schema string

const mysqlDuplicateEntry = 1062

// MySQLStore implements core.TokenStore and core.UserStore on MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore wraps an open database handle.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// ApplySchema creates the tables when they do not exist yet.
func (s *MySQLStore) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply token store schema: %w", err)
	}
	return nil
}

func (s *MySQLStore) InsertToken(ctx context.Context, token *core.AccessToken) (*core.AccessToken, error) {
	if token == nil {
		return nil, ErrNilToken
	}
	if token.Token == "" {
		return nil, ErrEmptyToken
	}

	stored := *token
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.ExpiredIn = stored.ExpiredIn.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_tokens (
			id,
			token,
			user_id,
			expired_in,
			is_outer,
			created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		stored.ID,
		stored.Token,
		nullIfBlank(stored.UserID),
		stored.ExpiredIn,
		stored.Outer,
		timeNow().UTC(),
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, ErrDuplicateToken
		}
		return nil, fmt.Errorf("insert access token %s: %w", stored.ID, err)
	}

	return &stored, nil
}

func (s *MySQLStore) FindTokenByValue(ctx context.Context, token string) (*core.AccessToken, error) {
	var (
		record core.AccessToken
		userID sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token, user_id, expired_in, is_outer
		FROM access_tokens
		WHERE token = ?
	`, token).Scan(&record.ID, &record.Token, &userID, &record.ExpiredIn, &record.Outer)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query access token: %w", err)
	}
	record.UserID = userID.String

	return &record, nil
}

// AssignTokenUser binds an unowned token to userID.
func (s *MySQLStore) AssignTokenUser(ctx context.Context, token, userID string, expiredIn time.Time) (*core.AccessToken, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE access_tokens
		SET user_id = ?, expired_in = ?, is_outer = FALSE
		WHERE token = ? AND user_id IS NULL
	`, userID, expiredIn.UTC(), token)
	if err != nil {
		return nil, fmt.Errorf("assign access token user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("assign access token user: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.FindTokenByValue(ctx, token)
}

// CreateUser inserts an account. The password must already be hashed.
func (s *MySQLStore) CreateUser(ctx context.Context, user *core.User) (*core.User, error) {
	if user == nil || user.Name == "" {
		return nil, ErrInvalidUser
	}

	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, stored.ID, stored.Name, stored.PasswordHash, timeNow().UTC())
	if err != nil {
		if isDuplicateEntry(err) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("insert user %s: %w", stored.Name, err)
	}

	return &stored, nil
}

func (s *MySQLStore) FindUserByName(ctx context.Context, name string) (*core.User, error) {
	return s.findUser(ctx, "name", name)
}

func (s *MySQLStore) FindUserByID(ctx context.Context, id string) (*core.User, error) {
	return s.findUser(ctx, "id", id)
}

// findUser looks a user up by column, which is always one of the literals above.
func (s *MySQLStore) findUser(ctx context.Context, column, value string) (*core.User, error) {
	var user core.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash
		FROM users
		WHERE `+column+` = ?
	`, value).Scan(&user.ID, &user.Name, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query user by %s: %w", column, err)
	}
	return &user, nil
}

// DeleteExpired removes tokens whose expiry has passed.
func (s *MySQLStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM access_tokens
		WHERE expired_in <= ?
	`, timeNow().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired access tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted access tokens: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying database handle.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

// nullIfBlank maps blank strings to SQL NULL.
func nullIfBlank(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func isDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
