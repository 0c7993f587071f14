/*
Package sqlite provides a SQLite-backed toil.Repository.

PURPOSE:
  Persists lieu-time entries, balance snapshots and weekly submissions.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences (partial indexes and ON CONFLICT exist in both).

KEY TABLES:
  toil_entries:     One row per user per day, UNIQUE(user_id, entry_date)
  toil_balances:    One balance snapshot per user
  toil_submissions: Weekly submissions, entries frozen as JSON

INDEXES:
  - idx_unique_active_submission: at most one pending or approved
    submission per (user_id, week_start). This is what makes two racing
    submits for the same week fail instead of both succeeding.
  - idx_toil_entries_user_week: week loads (hot path)
  - idx_toil_submissions_status: approver queue

ERRORS:
  SQLITE_BUSY / SQLITE_LOCKED are wrapped with toil.Transient. A unique
  violation on submissions becomes toil.ErrActiveSubmissionExists.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, plus WAL mode and a busy timeout.

USAGE:
  store, err := sqlite.New("./data/toil.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := toil.NewService(store)

SEE ALSO:
  - toil/repository.go: Interface definition
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/toil-engine/toil"
)

// Fixed-width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements toil.Repository using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now toil.Clock
}

var _ toil.Repository = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an already opened database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS toil_entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		week_start TEXT NOT NULL,
		requested_minutes INTEGER NOT NULL DEFAULT 0,
		used_minutes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(user_id, entry_date)
	);

	CREATE INDEX IF NOT EXISTS idx_toil_entries_user_week
		ON toil_entries(user_id, week_start);

	CREATE TABLE IF NOT EXISTS toil_balances (
		user_id TEXT PRIMARY KEY,
		total_minutes INTEGER NOT NULL DEFAULT 0,
		as_of TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS toil_submissions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		week_start TEXT NOT NULL,
		status TEXT NOT NULL,
		comments TEXT,
		entries_json TEXT NOT NULL,
		carry_in_minutes INTEGER NOT NULL DEFAULT 0,
		submitted_at TEXT NOT NULL,
		approved_at TEXT,
		decided_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT,
		cancelled_at TEXT,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: one active submission per user and week
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_active_submission
		ON toil_submissions(user_id, week_start)
		WHERE status IN ('pending', 'approved');

	CREATE INDEX IF NOT EXISTS idx_toil_submissions_user_week
		ON toil_submissions(user_id, week_start);
	CREATE INDEX IF NOT EXISTS idx_toil_submissions_status
		ON toil_submissions(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRIES
// =============================================================================

const entryColumns = `id, user_id, entry_date, week_start, requested_minutes, used_minutes,
	status, created_at, updated_at`

// LoadWeek returns the persisted entries of the week, ordered by date.
func (s *Store) LoadWeek(ctx context.Context, userID toil.UserID, weekStart toil.Date) ([]toil.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + `
		FROM toil_entries
		WHERE user_id = ? AND week_start = ?
		ORDER BY entry_date ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, weekStart.String())
	if err != nil {
		return nil, classify("load week", err)
	}
	defer rows.Close()

	var entries []toil.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, classify("load week", rows.Err())
}

// SaveEntry upserts the entry keyed by (user, date). The status of an
// existing row is left alone; it follows the week's submission.
func (s *Store) SaveEntry(ctx context.Context, userID toil.UserID, date toil.Date, requested, used toil.Duration) (toil.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC().Format(timeLayout)
	query := `
		INSERT INTO toil_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, entry_date) DO UPDATE SET
			requested_minutes = excluded.requested_minutes,
			used_minutes = excluded.used_minutes,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), userID, date.String(), toil.WeekStart(date).String(),
		requested.Minutes(), used.Minutes(), toil.EntryDraft, now, now,
	)
	if err != nil {
		return toil.Entry{}, classify("save entry", err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM toil_entries WHERE user_id = ? AND entry_date = ?`,
		userID, date.String(),
	)
	e, err := scanEntry(row)
	if err != nil {
		return toil.Entry{}, err
	}
	return e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (toil.Entry, error) {
	var (
		e                    toil.Entry
		entryDate, weekStart string
		requested, used      int64
		createdAt, updatedAt string
	)
	err := row.Scan(&e.ID, &e.UserID, &entryDate, &weekStart, &requested, &used,
		&e.Status, &createdAt, &updatedAt)
	if err != nil {
		return e, classify("scan entry", err)
	}

	e.Date = parseDate(entryDate)
	e.WeekStart = parseDate(weekStart)
	e.Requested = toil.Duration(requested)
	e.Used = toil.Duration(used)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// =============================================================================
// BALANCES
// =============================================================================

// LoadBalance returns the stored snapshot or a zero balance.
func (s *Store) LoadBalance(ctx context.Context, userID toil.UserID) (toil.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := loadBalance(ctx, s.db, userID)
	return b, classify("load balance", err)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadBalance(ctx context.Context, db querier, userID toil.UserID) (toil.Balance, error) {
	var (
		total     int64
		asOf      sql.NullString
		updatedAt string
	)
	err := db.QueryRowContext(ctx,
		`SELECT total_minutes, as_of, updated_at FROM toil_balances WHERE user_id = ?`,
		userID,
	).Scan(&total, &asOf, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return toil.Balance{UserID: userID}, nil
	}
	if err != nil {
		return toil.Balance{}, err
	}

	b := toil.Balance{
		UserID:    userID,
		Total:     toil.Duration(total),
		UpdatedAt: parseTime(updatedAt),
	}
	if asOf.Valid {
		b.AsOf = parseDate(asOf.String)
	}
	return b, nil
}

// SaveBalance upserts the user's snapshot.
func (s *Store) SaveBalance(ctx context.Context, balance toil.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return classify("save balance", saveBalance(ctx, s.db, balance))
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveBalance(ctx context.Context, db execer, b toil.Balance) error {
	var asOf sql.NullString
	if !b.AsOf.IsZero() {
		asOf = sql.NullString{String: b.AsOf.String(), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO toil_balances (user_id, total_minutes, as_of, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_minutes = excluded.total_minutes,
			as_of = excluded.as_of,
			updated_at = excluded.updated_at
	`, b.UserID, b.Total.Minutes(), asOf, b.UpdatedAt.UTC().Format(timeLayout))
	return err
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

const submissionColumns = `id, user_id, week_start, status, comments, entries_json,
	carry_in_minutes, submitted_at, approved_at, decided_by, decided_at, rejection_reason, cancelled_at, updated_at`

// CreateSubmission inserts a pending submission and moves the week's
// entries to pending, atomically.
func (s *Store) CreateSubmission(ctx context.Context, sub toil.Submission) (toil.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entriesJSON, err := json.Marshal(sub.Entries)
	if err != nil {
		return toil.Submission{}, fmt.Errorf("failed to encode entries: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var active int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM toil_submissions
			WHERE user_id = ? AND week_start = ? AND status IN ('pending', 'approved')
		`, sub.UserID, sub.WeekStart.String()).Scan(&active)
		if err != nil {
			return err
		}
		if active > 0 {
			return toil.ErrActiveSubmissionExists
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO toil_submissions (`+submissionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			sub.ID, sub.UserID, sub.WeekStart.String(), sub.Status, nullString(sub.Comments),
			string(entriesJSON), sub.CarryIn.Minutes(), formatTime(sub.SubmittedAt), nullTime(sub.ApprovedAt),
			nullString(sub.DecidedBy), nullTime(sub.DecidedAt), nullString(sub.RejectionReason),
			nullTime(sub.CancelledAt), formatTime(sub.UpdatedAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return toil.ErrActiveSubmissionExists
			}
			return err
		}

		return setWeekStatus(ctx, tx, sub.UserID, sub.WeekStart, sub.Status.EntryStatus())
	})
	if err != nil {
		return toil.Submission{}, classify("create submission", err)
	}
	return sub, nil
}

// GetSubmission retrieves a submission by ID.
func (s *Store) GetSubmission(ctx context.Context, id toil.SubmissionID) (*toil.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM toil_submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, toil.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// LatestSubmission returns the most recently inserted submission for the week.
func (s *Store) LatestSubmission(ctx context.Context, userID toil.UserID, weekStart toil.Date) (*toil.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+submissionColumns+` FROM toil_submissions
		WHERE user_id = ? AND week_start = ?
		ORDER BY rowid DESC
		LIMIT 1
	`, userID, weekStart.String())
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// UpdateSubmission writes the new status, the entry lock-step and the
// optional balance update in one transaction. The stored status is read
// inside the transaction, so a submission decided concurrently is refused
// instead of being applied twice.
func (s *Store) UpdateSubmission(ctx context.Context, sub toil.Submission, update toil.BalanceUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var stored toil.SubmissionStatus
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM toil_submissions WHERE id = ?`, sub.ID,
		).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return toil.ErrSubmissionNotFound
		}
		if err != nil {
			return err
		}
		if !toil.CanTransition(stored, sub.Status) {
			return &toil.TransitionError{SubmissionID: sub.ID, From: stored, To: sub.Status}
		}

		var balance *toil.Balance
		if update != nil {
			current, err := loadBalance(ctx, tx, sub.UserID)
			if err != nil {
				return err
			}
			next, err := update(&sub, current)
			if err != nil {
				return err
			}
			balance = &next
		}

		entriesJSON, err := json.Marshal(sub.Entries)
		if err != nil {
			return fmt.Errorf("failed to encode entries: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE toil_submissions SET
				status = ?, entries_json = ?, carry_in_minutes = ?, approved_at = ?, decided_by = ?,
				decided_at = ?, rejection_reason = ?, cancelled_at = ?, updated_at = ?
			WHERE id = ?
		`,
			sub.Status, string(entriesJSON), sub.CarryIn.Minutes(), nullTime(sub.ApprovedAt),
			nullString(sub.DecidedBy), nullTime(sub.DecidedAt), nullString(sub.RejectionReason),
			nullTime(sub.CancelledAt), formatTime(sub.UpdatedAt), sub.ID,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return toil.ErrActiveSubmissionExists
			}
			return err
		}

		if err := setWeekStatus(ctx, tx, sub.UserID, sub.WeekStart, sub.Status.EntryStatus()); err != nil {
			return err
		}
		if balance != nil {
			return saveBalance(ctx, tx, *balance)
		}
		return nil
	})
	return classify("update submission", err)
}

// ListSubmissions returns submissions matching filter, oldest first.
func (s *Store) ListSubmissions(ctx context.Context, filter toil.SubmissionFilter) ([]toil.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "week_start >= ?")
		args = append(args, filter.From.String())
	}
	if filter.To != nil {
		where = append(where, "week_start <= ?")
		args = append(args, filter.To.String())
	}

	query := `SELECT ` + submissionColumns + ` FROM toil_submissions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list submissions", err)
	}
	defer rows.Close()

	var subs []toil.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, classify("list submissions", rows.Err())
}

func scanSubmission(row rowScanner) (toil.Submission, error) {
	var (
		sub                                  toil.Submission
		weekStart, entriesJSON               string
		carryIn                              int64
		submittedAt, updatedAt               string
		comments, decidedBy, rejectionReason sql.NullString
		approvedAt, decidedAt, cancelledAt   sql.NullString
	)
	err := row.Scan(&sub.ID, &sub.UserID, &weekStart, &sub.Status, &comments, &entriesJSON,
		&carryIn, &submittedAt, &approvedAt, &decidedBy, &decidedAt, &rejectionReason, &cancelledAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sub, err
	}
	if err != nil {
		return sub, classify("scan submission", err)
	}

	if err := json.Unmarshal([]byte(entriesJSON), &sub.Entries); err != nil {
		return sub, fmt.Errorf("failed to decode submission entries: %w", err)
	}
	sub.WeekStart = parseDate(weekStart)
	sub.CarryIn = toil.Duration(carryIn)
	sub.Comments = comments.String
	sub.SubmittedAt = parseTime(submittedAt)
	sub.ApprovedAt = parseNullTime(approvedAt)
	sub.DecidedBy = decidedBy.String
	sub.DecidedAt = parseNullTime(decidedAt)
	sub.RejectionReason = rejectionReason.String
	sub.CancelledAt = parseNullTime(cancelledAt)
	sub.UpdatedAt = parseTime(updatedAt)
	return sub, nil
}

func setWeekStatus(ctx context.Context, db execer, userID toil.UserID, weekStart toil.Date, status toil.EntryStatus) error {
	_, err := db.ExecContext(ctx,
		`UPDATE toil_entries SET status = ? WHERE user_id = ? AND week_start = ?`,
		status, userID, weekStart.String(),
	)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// withTx executes fn within a database transaction. Caller holds s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

// classify wraps busy / locked driver errors as transient. Domain sentinel
// errors pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return toil.Transient(op, err)
		}
	}
	if errors.Is(err, toil.ErrActiveSubmissionExists) || errors.Is(err, toil.ErrSubmissionNotFound) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDate(s string) toil.Date {
	d, _ := toil.ParseDate(s)
	return d
}
