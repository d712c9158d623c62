package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"mailsched/internal/schedule"
	logx "mailsched/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateUser(ctx context.Context, u User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, email, username, password_hash, created_at) VALUES(?,?,?,?,?)`,
		u.ID.String(), strings.ToLower(u.Email), u.Username, u.PasswordHash, fmtTime(u.CreatedAt),
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	return err
}

func (s *sqliteStore) UserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, username, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(email),
	)
	var (
		u       User
		id, cat string
	)
	err := row.Scan(&id, &u.Email, &u.Username, &u.PasswordHash, &cat)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return User{}, err
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return User{}, err
	}
	u.CreatedAt = parseTime(cat)
	return u, nil
}

func (s *sqliteStore) EnsureUser(ctx context.Context, email string) (User, error) {
	u, err := s.UserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	u = User{
		ID:        uuid.New(),
		Email:     strings.ToLower(email),
		Username:  usernameFromEmail(email),
		CreatedAt: time.Now(),
	}
	if err := s.CreateUser(ctx, u); err != nil {
		// Lost a race with a concurrent EnsureUser; re-read.
		if errors.Is(err, ErrConflict) {
			return s.UserByEmail(ctx, email)
		}
		return User{}, err
	}
	return u, nil
}

func (s *sqliteStore) CreateEmail(ctx context.Context, e schedule.Email) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_emails(id, owner_id, recipient_email, subject, content, email_header,
		   scheduled_time, recurrence_type, is_active, last_sent, next_send, created_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID.String(), e.OwnerID.String(), e.Recipient, e.Subject, e.Body, nullStr(e.Header),
		fmtTime(e.ScheduledAt), e.Recurrence.String(), boolInt(e.Active),
		nullTime(e.LastSentAt), nullTime(e.NextSendAt), fmtTime(e.CreatedAt),
	)
	return err
}

func (s *sqliteStore) Email(ctx context.Context, id uuid.UUID) (schedule.Email, error) {
	row := s.db.QueryRowContext(ctx, selectEmailCols+` WHERE id = ?`, id.String())
	e, err := scanEmail(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Email{}, fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return e, err
}

func (s *sqliteStore) ActiveByOwner(ctx context.Context, owner uuid.UUID) ([]schedule.Email, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEmailCols+` WHERE owner_id = ? AND is_active = 1 ORDER BY scheduled_time ASC`,
		owner.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmails(rows)
}

func (s *sqliteStore) DueEmails(ctx context.Context, now time.Time) ([]schedule.Email, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEmailCols+` WHERE is_active = 1 AND next_send IS NOT NULL AND next_send <= ? ORDER BY next_send ASC`,
		fmtTime(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEmails(rows)
}

func (s *sqliteStore) Deactivate(ctx context.Context, id, owner uuid.UUID) error {
	var ownerID string
	err := s.db.QueryRowContext(ctx,
		`SELECT owner_id FROM scheduled_emails WHERE id = ? AND is_active = 1`, id.String(),
	).Scan(&ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if ownerID != owner.String() {
		return fmt.Errorf("email %s: %w", id, ErrOwnerMismatch)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE scheduled_emails SET is_active = 0 WHERE id = ?`, id.String())
	return err
}

func (s *sqliteStore) MarkFired(ctx context.Context, id uuid.UUID, up FireUpdate) error {
	var res sql.Result
	var err error
	if up.NextSendAt != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_emails SET last_sent = ?, next_send = ?, is_active = ? WHERE id = ?`,
			fmtTime(up.LastSentAt), fmtTime(*up.NextSendAt), boolInt(up.Active), id.String())
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE scheduled_emails SET last_sent = ?, is_active = ? WHERE id = ?`,
			fmtTime(up.LastSentAt), boolInt(up.Active), id.String())
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("email %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, actor, action, target, ok, err, took_ms) VALUES(?,?,?,?,?,?,?)`,
		fmtTime(e.At), nullStr(e.Actor), e.Action, nullStr(e.Target), boolInt(e.OK), nullStr(e.Error), e.TookMS,
	)
	return err
}

const selectEmailCols = `SELECT id, owner_id, recipient_email, subject, content, email_header,
  scheduled_time, recurrence_type, is_active, last_sent, next_send, created_at FROM scheduled_emails`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (schedule.Email, error) {
	var (
		e                    schedule.Email
		id, owner, rec, sat  string
		header, lsent, nsend sql.NullString
		active               int
		cat                  string
	)
	err := row.Scan(&id, &owner, &e.Recipient, &e.Subject, &e.Body, &header,
		&sat, &rec, &active, &lsent, &nsend, &cat)
	if err != nil {
		return schedule.Email{}, err
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return schedule.Email{}, err
	}
	if e.OwnerID, err = uuid.Parse(owner); err != nil {
		return schedule.Email{}, err
	}
	if e.Recurrence, err = schedule.ParseRecurrence(rec); err != nil {
		return schedule.Email{}, err
	}
	e.Header = header.String
	e.ScheduledAt = parseTime(sat)
	e.Active = active != 0
	if lsent.Valid {
		t := parseTime(lsent.String)
		e.LastSentAt = &t
	}
	if nsend.Valid {
		t := parseTime(nsend.String)
		e.NextSendAt = &t
	}
	e.CreatedAt = parseTime(cat)
	return e, nil
}

func scanEmails(rows *sql.Rows) ([]schedule.Email, error) {
	var out []schedule.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// timeLayout is fixed-width (always 9 fractional digits) so stored
// timestamps compare correctly as strings in SQL. RFC3339Nano trims
// trailing zeros, which breaks lexical ordering within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func usernameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
