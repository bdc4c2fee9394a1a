package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

var (
	_ Repository = (*PostgresRepo)(nil)
	_ Repository = (*MemoryRepo)(nil)
)

// Account is a stored identity plus its credential.
type Account struct {
	ID              string
	Email           string
	PasswordHash    string
	DisplayName     string
	PhotoURL        string
	EmailVerified   bool
	ProviderSubject string
	CreatedAt       time.Time
	LastLoginAt     time.Time
}

func (a *Account) Identity() *models.Identity {
	return &models.Identity{
		UID:           a.ID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		PhotoURL:      a.PhotoURL,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
		LastLoginAt:   a.LastLoginAt,
	}
}

// FederatedProfile is what a verified ID token says about its subject.
type FederatedProfile struct {
	Subject       string
	Email         string
	Name          string
	Picture       string
	EmailVerified bool
}

type Repository interface {
	// CreateAccount stores a new password account. Returns models.ErrConflict
	// when the email is taken.
	CreateAccount(ctx context.Context, email, passwordHash string) (*Account, error)
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	TouchLogin(ctx context.Context, id string) (time.Time, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) error
	// UpsertFederated creates or refreshes the account a federated token maps to.
	UpsertFederated(ctx context.Context, p FederatedProfile) (*Account, error)
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var accountColumns = []string{
	"id::text",
	"email",
	"COALESCE(password_hash, '')",
	"COALESCE(display_name, '')",
	"COALESCE(photo_url, '')",
	"email_verified",
	"COALESCE(provider_subject, '')",
	"created_at",
	"last_login_at",
}

type PostgresRepo struct {
	logger *zap.Logger
	db     DB
	tracer trace.Tracer
}

func NewPostgresRepo(db DB, logger *zap.Logger) *PostgresRepo {
	return &PostgresRepo{
		logger: logger,
		db:     db,
		tracer: otel.Tracer("loanhub/identity"),
	}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &a.DisplayName, &a.PhotoURL,
		&a.EmailVerified, &a.ProviderSubject, &a.CreatedAt, &a.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRepo) span(ctx context.Context, name, statement string) (context.Context, trace.Span) {
	return r.tracer.Start(ctx, "PostgresRepo."+name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.statement", statement),
	))
}

func (r *PostgresRepo) CreateAccount(ctx context.Context, email, passwordHash string) (*Account, error) {
	ctx, span := r.span(ctx, "CreateAccount", "INSERT INTO accounts ...")
	defer span.End()

	query, args, err := psql.Insert("accounts").
		Columns("email", "password_hash").
		Values(normalizeEmail(email), passwordHash).
		Suffix("RETURNING " + strings.Join(accountColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert account: %w", err)
	}

	acct, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("email %s already registered: %w", email, models.ErrConflict)
		}
		r.logger.Error("Error inserting account", zap.Error(err), zap.String("email", email))
		return nil, fmt.Errorf("database error creating account: %w", err)
	}
	return acct, nil
}

func (r *PostgresRepo) AccountByEmail(ctx context.Context, email string) (*Account, error) {
	ctx, span := r.span(ctx, "AccountByEmail", "SELECT ... FROM accounts WHERE email = $1")
	defer span.End()

	query, args, err := psql.Select(accountColumns...).
		From("accounts").
		Where(sq.Eq{"email": normalizeEmail(email)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account: %w", err)
	}

	acct, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", email, models.ErrNotFound)
		}
		span.RecordError(err)
		r.logger.Error("Error fetching account by email", zap.Error(err), zap.String("email", email))
		return nil, fmt.Errorf("database error fetching account: %w", err)
	}
	return acct, nil
}

func (r *PostgresRepo) TouchLogin(ctx context.Context, id string) (time.Time, error) {
	ctx, span := r.span(ctx, "TouchLogin", "UPDATE accounts SET last_login_at = now()")
	defer span.End()

	query, args, err := psql.Update("accounts").
		Set("last_login_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING last_login_at").
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build touch login: %w", err)
	}

	var at time.Time
	if err := r.db.QueryRow(ctx, query, args...).Scan(&at); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
		}
		span.RecordError(err)
		return time.Time{}, fmt.Errorf("database error touching login: %w", err)
	}
	return at, nil
}

func (r *PostgresRepo) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) error {
	ctx, span := r.span(ctx, "UpdateProfile", "UPDATE accounts SET display_name, photo_url")
	defer span.End()

	b := psql.Update("accounts").Where(sq.Eq{"id": id})
	if upd.DisplayName == nil && upd.PhotoURL == nil {
		return nil
	}
	if upd.DisplayName != nil {
		b = b.Set("display_name", *upd.DisplayName)
	}
	if upd.PhotoURL != nil {
		b = b.Set("photo_url", *upd.PhotoURL)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build update profile: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		r.logger.Error("Error updating profile", zap.Error(err), zap.String("id", id))
		return fmt.Errorf("database error updating profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *PostgresRepo) UpsertFederated(ctx context.Context, p FederatedProfile) (*Account, error) {
	ctx, span := r.span(ctx, "UpsertFederated", "INSERT INTO accounts ... ON CONFLICT (email) DO UPDATE")
	defer span.End()

	query, args, err := psql.Insert("accounts").
		Columns("email", "display_name", "photo_url", "email_verified", "provider_subject", "last_login_at").
		Values(normalizeEmail(p.Email), p.Name, p.Picture, p.EmailVerified, p.Subject, sq.Expr("now()")).
		Suffix("ON CONFLICT (email) DO UPDATE SET " +
			"provider_subject = EXCLUDED.provider_subject, " +
			"email_verified = accounts.email_verified OR EXCLUDED.email_verified, " +
			"display_name = COALESCE(NULLIF(accounts.display_name, ''), EXCLUDED.display_name), " +
			"photo_url = COALESCE(NULLIF(accounts.photo_url, ''), EXCLUDED.photo_url), " +
			"last_login_at = now() " +
			"RETURNING " + strings.Join(accountColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert federated: %w", err)
	}

	acct, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		r.logger.Error("Error upserting federated account", zap.Error(err), zap.String("email", p.Email))
		return nil, fmt.Errorf("database error upserting federated account: %w", err)
	}
	return acct, nil
}

// MemoryRepo keeps accounts in process memory. It backs IDENTITY_STORE=memory
// and the tests.
type MemoryRepo struct {
	mu      sync.Mutex
	byEmail map[string]*Account
	byID    map[string]*Account
	now     func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byEmail: make(map[string]*Account),
		byID:    make(map[string]*Account),
		now:     time.Now,
	}
}

func (m *MemoryRepo) CreateAccount(_ context.Context, email, passwordHash string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = normalizeEmail(email)
	if _, ok := m.byEmail[email]; ok {
		return nil, fmt.Errorf("email %s already registered: %w", email, models.ErrConflict)
	}
	now := m.now()
	a := &Account{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, CreatedAt: now, LastLoginAt: now}
	m.byEmail[email] = a
	m.byID[a.ID] = a
	c := *a
	return &c, nil
}

func (m *MemoryRepo) AccountByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", email, models.ErrNotFound)
	}
	c := *a
	return &c, nil
}

func (m *MemoryRepo) TouchLogin(_ context.Context, id string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return time.Time{}, fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	a.LastLoginAt = m.now()
	return a.LastLoginAt, nil
}

func (m *MemoryRepo) UpdateProfile(_ context.Context, id string, upd models.ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return fmt.Errorf("account %s: %w", id, models.ErrNotFound)
	}
	if upd.DisplayName != nil {
		a.DisplayName = *upd.DisplayName
	}
	if upd.PhotoURL != nil {
		a.PhotoURL = *upd.PhotoURL
	}
	return nil
}

func (m *MemoryRepo) UpsertFederated(_ context.Context, p FederatedProfile) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := normalizeEmail(p.Email)
	now := m.now()
	a, ok := m.byEmail[email]
	if !ok {
		a = &Account{ID: uuid.NewString(), Email: email, CreatedAt: now}
		m.byEmail[email] = a
		m.byID[a.ID] = a
	}
	a.ProviderSubject = p.Subject
	a.EmailVerified = a.EmailVerified || p.EmailVerified
	if a.DisplayName == "" {
		a.DisplayName = p.Name
	}
	if a.PhotoURL == "" {
		a.PhotoURL = p.Picture
	}
	a.LastLoginAt = now
	c := *a
	return &c, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
