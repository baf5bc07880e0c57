package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/mkrupp/streamhub/internal/domain"
	"github.com/mkrupp/streamhub/internal/infra/logging"
	"github.com/mkrupp/streamhub/internal/repo/user/migrations"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name       string
	goose      goose.Dialect
	migrations string
	// positional rewrites ? placeholders to $n
	positional bool
	// isUniqueViolation recognizes the driver's unique constraint error
	isUniqueViolation func(error) bool
	// serializeWrites guards writers with a mutex
	serializeWrites bool
}

const userColumns = `id, email, password_hash, name, avatar, bio,
	is_admin, is_active, is_verified, last_login, password_changed_at,
	created_at, updated_at`

// SQLUserRepository implements Repository on top of database/sql.
type SQLUserRepository struct {
	db        *sql.DB
	dialect   dialect
	log       logging.Logger
	writeLock *sync.Mutex
	now       func() time.Time
}

var _ Repository = (*SQLUserRepository)(nil)

func newSQLUserRepository(db *sql.DB, d dialect, log logging.Logger) *SQLUserRepository {
	return &SQLUserRepository{
		db:        db,
		dialect:   d,
		log:       log,
		writeLock: new(sync.Mutex),
		now:       time.Now,
	}
}

func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	fsys, err := migrations.FS(d.migrations)
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(d.goose, db, fsys)
	if err != nil {
		return fmt.Errorf("new migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	return nil
}

func (r *SQLUserRepository) rebind(query string) string {
	if !r.dialect.positional {
		return query
	}

	var (
		sb strings.Builder
		n  int
	)

	for _, c := range query {
		if c == '?' {
			n++

			sb.WriteString("$" + strconv.Itoa(n))

			continue
		}

		sb.WriteRune(c)
	}

	return sb.String()
}

func (r *SQLUserRepository) lockWrites() func() {
	if !r.dialect.serializeWrites {
		return func() {}
	}

	r.writeLock.Lock()

	return r.writeLock.Unlock
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user              domain.User
		lastLogin         sql.NullInt64
		passwordChangedAt sql.NullInt64
		createdAt         int64
		updatedAt         int64
	)

	if err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Name, &user.Avatar, &user.Bio,
		&user.IsAdmin, &user.IsActive, &user.IsVerified, &lastLogin, &passwordChangedAt,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err //nolint:wrapcheck
	}

	user.LastLogin = fromNullMillis(lastLogin)
	user.PasswordChangedAt = fromNullMillis(passwordChangedAt)
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	user.UpdatedAt = time.UnixMilli(updatedAt).UTC()

	return &user, nil
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}

	t := time.UnixMilli(v.Int64).UTC()

	return &t
}

func (r *SQLUserRepository) findOne(ctx context.Context, where string, arg any) (*domain.User, bool, error) {
	row := r.db.QueryRowContext(ctx, r.rebind("SELECT "+userColumns+" FROM users WHERE "+where), arg)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("query user: %w", err)
	}

	return user, true, nil
}

// FindByEmail implements Repository.FindByEmail.
func (r *SQLUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, bool, error) {
	return r.findOne(ctx, "email = ?", normalizeEmail(email))
}

// FindByID implements Repository.FindByID.
func (r *SQLUserRepository) FindByID(ctx context.Context, id string) (*domain.User, bool, error) {
	return r.findOne(ctx, "id = ?", id)
}

// Create implements Repository.Create.
func (r *SQLUserRepository) Create(ctx context.Context, draft domain.UserDraft) (*domain.User, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("new id: %w", err)
	}

	now := r.now().UTC().Truncate(time.Millisecond)
	user := userFromDraft(id.String(), draft, now)

	unlock := r.lockWrites()
	defer unlock()

	_, err = r.db.ExecContext(ctx, r.rebind(
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		user.ID, user.Email, user.PasswordHash, user.Name, user.Avatar, user.Bio,
		user.IsAdmin, user.IsActive, user.IsVerified,
		toNullMillis(user.LastLogin), toNullMillis(user.PasswordChangedAt),
		user.CreatedAt.UnixMilli(), user.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			err = errors.Join(domain.ErrDuplicateEmail, err)
		}

		return nil, fmt.Errorf("insert user: %w", err)
	}

	r.log.DebugContext(ctx, "user created", logging.Group("user", "id", user.ID))

	return user, nil
}

// Save implements Repository.Save.
func (r *SQLUserRepository) Save(ctx context.Context, user *domain.User) (*domain.User, error) {
	saved := *user
	saved.Email = normalizeEmail(saved.Email)
	saved.UpdatedAt = r.now().UTC().Truncate(time.Millisecond)

	unlock := r.lockWrites()
	defer unlock()

	res, err := r.db.ExecContext(ctx, r.rebind(`UPDATE users SET
		email = ?, password_hash = ?, name = ?, avatar = ?, bio = ?,
		is_admin = ?, is_active = ?, is_verified = ?,
		last_login = ?, password_changed_at = ?, updated_at = ?
		WHERE id = ?`),
		saved.Email, saved.PasswordHash, saved.Name, saved.Avatar, saved.Bio,
		saved.IsAdmin, saved.IsActive, saved.IsVerified,
		toNullMillis(saved.LastLogin), toNullMillis(saved.PasswordChangedAt), saved.UpdatedAt.UnixMilli(),
		saved.ID,
	)
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			err = errors.Join(domain.ErrDuplicateEmail, err)
		}

		return nil, fmt.Errorf("update user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return nil, domain.ErrUserNotFound
	}

	return &saved, nil
}

// Delete implements Repository.Delete.
func (r *SQLUserRepository) Delete(ctx context.Context, id string) (bool, error) {
	unlock := r.lockWrites()
	defer unlock()

	res, err := r.db.ExecContext(ctx, r.rebind("DELETE FROM users WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n > 0, nil
}

// List implements Repository.List.
func (r *SQLUserRepository) List(ctx context.Context, query domain.ListQuery) ([]*domain.User, int, error) {
	var (
		where string
		args  []any
	)

	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		where = ` WHERE lower(name) LIKE ? ESCAPE '\' OR lower(email) LIKE ? ESCAPE '\'`
		args = append(args, pattern, pattern)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, r.rebind("SELECT COUNT(*) FROM users"+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		r.rebind("SELECT "+userColumns+" FROM users"+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"),
		append(args, query.Limit, query.Offset)...,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]*domain.User, 0, query.Limit)

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}

		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}

	return users, total, nil
}

// CountAdmins implements Repository.CountAdmins.
func (r *SQLUserRepository) CountAdmins(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, r.rebind("SELECT COUNT(*) FROM users WHERE is_admin = ?"), true).Scan(&n); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}

	return n, nil
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLUserRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}

func userFromDraft(id string, draft domain.UserDraft, now time.Time) *domain.User {
	return &domain.User{
		ID:           id,
		Email:        normalizeEmail(draft.Email),
		PasswordHash: draft.PasswordHash,
		Name:         draft.Name,
		Avatar:       draft.Avatar,
		Bio:          draft.Bio,
		IsAdmin:      draft.IsAdmin,
		IsActive:     draft.IsActive,
		IsVerified:   draft.IsVerified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
