// Package store persists user accounts and uploaded resume records.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/spigell/resume-agent/internal/apperr"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	PlanFree = "free"

	pgUniqueViolation = "23505"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config selects the database.
type Config struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// User is a registered account.
type User struct {
	ID                    string    `db:"id" json:"id"`
	Email                 string    `db:"email" json:"email"`
	HashedPassword        string    `db:"hashed_password" json:"-"`
	FullName              string    `db:"full_name" json:"full_name"`
	IsActive              bool      `db:"is_active" json:"is_active"`
	IsAdmin               bool      `db:"is_admin" json:"is_admin"`
	Plan                  string    `db:"plan" json:"plan"`
	BillingCustomerID     string    `db:"billing_customer_id" json:"-"`
	BillingSubscriptionID string    `db:"billing_subscription_id" json:"-"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
}

// Resume is an uploaded resume file and its extracted text.
type Resume struct {
	ID            string    `db:"id" json:"id"`
	UserID        string    `db:"user_id" json:"user_id"`
	ObjectKey     string    `db:"s3_key" json:"-"`
	Filename      string    `db:"filename" json:"filename"`
	ContentType   string    `db:"content_type" json:"content_type"`
	ExtractedText string    `db:"extracted_text" json:"extracted_text"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Store wraps the database handle.
type Store struct {
	db  *sqlx.DB
	now func() time.Time
}

// Open connects to the database and applies the embedded migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		if driver != DriverSQLite {
			return nil, errors.New("database dsn is required")
		}
		dsn = ":memory:"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == DriverSQLite {
		// In-memory databases exist per connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrations.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		for _, stmt := range strings.Split(string(body), ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, hashed_password, full_name, is_active, is_admin, plan,
	billing_customer_id, billing_subscription_id, created_at`

// CreateUser inserts u, assigning its id and creation time. A taken email is a conflict.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Email == "" {
		return apperr.Validation("email is required")
	}
	u.ID = uuid.NewString()
	u.CreatedAt = s.now().UTC()
	if u.Plan == "" {
		u.Plan = PlanFree
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :hashed_password, :full_name, :is_active, :is_admin, :plan,
			:billing_customer_id, :billing_subscription_id, :created_at)
	`, u)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Conflict("email already registered")
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail looks a user up by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`), NormalizeEmail(email))
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// GetUserByID looks a user up by id.
func (s *Store) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "user")
	}
	return &u, nil
}

// ListUsers returns users newest first.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]User, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	users := []User{}
	err := s.db.SelectContext(ctx, &users, s.db.Rebind(`
		SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC, email
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of accounts.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// SetPlan records a paid plan and its billing references for the user with email.
func (s *Store) SetPlan(ctx context.Context, email, plan, customerID, subscriptionID string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE users SET plan = ?, billing_customer_id = ?, billing_subscription_id = ?
		WHERE email = ?
	`), plan, customerID, subscriptionID, NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return requireRow(res, "user")
}

// ResetPlan moves the owner of subscriptionID back to the free plan.
func (s *Store) ResetPlan(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return apperr.Validation("subscription id is required")
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE users SET plan = ?, billing_subscription_id = ''
		WHERE billing_subscription_id = ?
	`), PlanFree, subscriptionID)
	if err != nil {
		return fmt.Errorf("reset plan: %w", err)
	}
	return requireRow(res, "subscription")
}

// CreateResume inserts r, assigning its id and creation time.
func (s *Store) CreateResume(ctx context.Context, r *Resume) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.CreatedAt = s.now().UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO resumes (id, user_id, s3_key, filename, content_type, extracted_text, created_at)
		VALUES (:id, :user_id, :s3_key, :filename, :content_type, :extracted_text, :created_at)
	`, r)
	if err != nil {
		return fmt.Errorf("insert resume: %w", err)
	}
	return nil
}

// GetResume returns the resume id owned by userID.
func (s *Store) GetResume(ctx context.Context, id, userID string) (*Resume, error) {
	var r Resume
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`
		SELECT id, user_id, s3_key, filename, content_type, extracted_text, created_at
		FROM resumes WHERE id = ? AND user_id = ?
	`), id, userID)
	if err != nil {
		return nil, notFound(err, "resume")
	}
	return &r, nil
}

// ListResumes returns the resumes of userID, newest first.
func (s *Store) ListResumes(ctx context.Context, userID string) ([]Resume, error) {
	resumes := []Resume{}
	err := s.db.SelectContext(ctx, &resumes, s.db.Rebind(`
		SELECT id, user_id, s3_key, filename, content_type, extracted_text, created_at
		FROM resumes WHERE user_id = ?
		ORDER BY created_at DESC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("list resumes: %w", err)
	}
	return resumes, nil
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func notFound(err error, resource string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(resource)
	}
	return fmt.Errorf("get %s: %w", resource, err)
}

func requireRow(res sql.Result, resource string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(resource)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
