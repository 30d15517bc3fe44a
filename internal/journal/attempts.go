package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptNotFound is returned when no open attempt matches a session id.
var ErrAttemptNotFound = errors.New("attempt not found")

// Attempt is one recorded extraction attempt.
type Attempt struct {
	ID                 int64
	SessionID          string
	Generation         uint64
	Source             string
	ArchivePath        string
	AnalyticsRequested bool
	Owner              string // journal instance that began the attempt
	Result             string // empty while running
	Failure            string
	AnalyticsError     string
	StartedAt          time.Time
	FinishedAt         time.Time // zero while running
}

// Running reports whether the attempt has not finished yet.
func (a Attempt) Running() bool {
	return a.FinishedAt.IsZero()
}

// Duration returns how long the attempt ran, or zero while running.
func (a Attempt) Duration() time.Duration {
	if a.Running() {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

const attemptColumns = `id, session_id, generation, source, archive_path, analytics_requested,
	owner, result, failure, analytics_error, started_at, finished_at`

// attemptModel is the database row. Timestamps are Unix milliseconds.
type attemptModel struct {
	ID                 int64
	SessionID          string
	Generation         int64
	Source             string
	ArchivePath        string
	AnalyticsRequested bool
	Owner              string
	Result             sql.NullString
	Failure            sql.NullString
	AnalyticsError     sql.NullString
	StartedAt          int64
	FinishedAt         sql.NullInt64
}

func (m attemptModel) toAttempt() Attempt {
	a := Attempt{
		ID:                 m.ID,
		SessionID:          m.SessionID,
		Generation:         uint64(m.Generation), //nolint:gosec // G115: stored from a uint64 that fits
		Source:             m.Source,
		ArchivePath:        m.ArchivePath,
		AnalyticsRequested: m.AnalyticsRequested,
		Owner:              m.Owner,
		Result:             m.Result.String,
		Failure:            m.Failure.String,
		AnalyticsError:     m.AnalyticsError.String,
		StartedAt:          time.UnixMilli(m.StartedAt),
	}
	if m.FinishedAt.Valid {
		a.FinishedAt = time.UnixMilli(m.FinishedAt.Int64)
	}
	return a
}

func scanAttempt(scanner interface{ Scan(...any) error }) (Attempt, error) {
	var m attemptModel
	err := scanner.Scan(
		&m.ID, &m.SessionID, &m.Generation, &m.Source, &m.ArchivePath, &m.AnalyticsRequested,
		&m.Owner, &m.Result, &m.Failure, &m.AnalyticsError, &m.StartedAt, &m.FinishedAt,
	)
	return m.toAttempt(), err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Begin records a started attempt owned by db and returns its row id.
func (db *DB) Begin(ctx context.Context, a Attempt) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO attempts (session_id, generation, source, archive_path, analytics_requested, owner, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, int64(a.Generation), a.Source, a.ArchivePath, a.AnalyticsRequested, db.owner, a.StartedAt.UnixMilli(), //nolint:gosec // G115
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// Finish closes the most recent open attempt for sessionID.
func (db *DB) Finish(ctx context.Context, sessionID, result, failure, analyticsError string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE attempts SET result = ?, failure = ?, analytics_error = ?, finished_at = ?
		WHERE id = (
			SELECT id FROM attempts WHERE session_id = ? AND finished_at IS NULL
			ORDER BY id DESC LIMIT 1
		)`,
		result, nullString(failure), nullString(analyticsError), at.UnixMilli(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAttemptNotFound, sessionID)
	}
	return nil
}

// Rejected records a start the engine refused. It is stored already finished.
func (db *DB) Rejected(ctx context.Context, a Attempt, result, failure string) error {
	at := a.StartedAt.UnixMilli()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO attempts (session_id, generation, source, archive_path, analytics_requested, owner,
			result, failure, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.SessionID, int64(a.Generation), a.Source, a.ArchivePath, a.AnalyticsRequested, db.owner, //nolint:gosec // G115
		result, nullString(failure), at, at,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rejected attempt: %w", err)
	}
	return nil
}

// CloseAbandoned marks open attempts whose owner is gone as finished with
// result: the owner closed its journal or its heartbeat is older than three
// intervals at at. Attempts of live owners are left alone. Stale owner rows
// are removed. Returns the number of attempts updated.
func (db *DB) CloseAbandoned(ctx context.Context, result string, at time.Time) (int64, error) {
	since := db.liveSince(at)
	res, err := db.conn.ExecContext(ctx,
		`UPDATE attempts SET result = ?, finished_at = ?
		WHERE finished_at IS NULL AND owner != ?
			AND owner NOT IN (SELECT id FROM owners WHERE heartbeat_at >= ?)`,
		result, at.UnixMilli(), db.owner, since,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to close abandoned attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM owners WHERE heartbeat_at < ? AND id != ?`, since, db.owner); err != nil {
		return n, fmt.Errorf("failed to prune journal owners: %w", err)
	}
	return n, nil
}

// Recent returns up to limit attempts, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// FindBySession returns the most recent attempt for sessionID.
func (db *DB) FindBySession(ctx context.Context, sessionID string) (Attempt, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE session_id = ? ORDER BY id DESC LIMIT 1`, sessionID)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("%w: %s", ErrAttemptNotFound, sessionID)
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("failed to find attempt: %w", err)
	}
	return a, nil
}

// Counts returns the number of finished attempts per result.
func (db *DB) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT result, COUNT(*) FROM attempts WHERE result IS NOT NULL GROUP BY result`)
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			result string
			n      int
		)
		if err := rows.Scan(&result, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[result] = n
	}
	return counts, rows.Err()
}
