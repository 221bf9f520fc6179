package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/anotheregi/blastkeun/internal/model"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const (
	outcomeSent   = "sent"
	outcomeFailed = "failed"
)

// maxLoggedMessage bounds the template text copied into each outcome row.
const maxLoggedMessage = 500

// SQLLedger stores sessions in blast_sessions and outcomes in message_logs.
// Timestamps are unix milliseconds so both dialects share the same queries.
type SQLLedger struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLLedger(db *sql.DB, dialect Dialect) *SQLLedger {
	return &SQLLedger{db: db, dialect: dialect, now: time.Now}
}

func (l *SQLLedger) Migrate(ctx context.Context) error {
	idCol := "BIGSERIAL PRIMARY KEY"
	if l.dialect == SQLite {
		idCol = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS blast_sessions (
			id ` + idCol + `,
			owner_id TEXT NOT NULL,
			session_name TEXT NOT NULL,
			mode TEXT NOT NULL,
			contacts_count INTEGER NOT NULL,
			messages_sent INTEGER NOT NULL DEFAULT 0,
			messages_failed INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			started_at BIGINT NOT NULL,
			completed_at BIGINT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_blast_sessions_owner_started
			ON blast_sessions (owner_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS message_logs (
			id ` + idCol + `,
			owner_id TEXT NOT NULL,
			blast_session_id BIGINT NOT NULL REFERENCES blast_sessions(id) ON DELETE CASCADE,
			phone_number TEXT NOT NULL,
			message TEXT NOT NULL,
			status TEXT NOT NULL,
			error_message TEXT,
			remote_message_id TEXT,
			sent_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_logs_session
			ON message_logs (blast_session_id, id)`,
	}

	for _, s := range stmts {
		if _, err := l.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (l *SQLLedger) CreateSession(ctx context.Context, s NewSession) (int64, error) {
	if s.StartedAt.IsZero() {
		s.StartedAt = l.now()
	}

	var id int64
	err := l.db.QueryRowContext(ctx, l.rebind(`
		INSERT INTO blast_sessions (owner_id, session_name, mode, contacts_count, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`), s.OwnerID, s.Name, string(s.Mode), s.ContactsCount, string(model.Running), s.StartedAt.UnixMilli()).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (l *SQLLedger) AppendOutcome(ctx context.Context, sessionID int64, ownerID, message string, o model.MessageOutcome) error {
	if o.At.IsZero() {
		o.At = l.now()
	}
	status := outcomeFailed
	if o.Success {
		status = outcomeSent
	}

	_, err := l.db.ExecContext(ctx, l.rebind(`
		INSERT INTO message_logs (owner_id, blast_session_id, phone_number, message, status, error_message, remote_message_id, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), ownerID, sessionID, o.Phone, truncate(message, maxLoggedMessage), status,
		nullString(o.Error), nullString(o.RemoteMessageID), o.At.UnixMilli())
	return err
}

func (l *SQLLedger) CompleteSession(ctx context.Context, sessionID int64, sent, failed int, status model.SessionStatus) error {
	res, err := l.db.ExecContext(ctx, l.rebind(`
		UPDATE blast_sessions
		SET messages_sent = ?, messages_failed = ?, status = ?, completed_at = ?
		WHERE id = ?
	`), sent, failed, string(status), l.now().UnixMilli(), sessionID)
	if err != nil {
		return err
	}
	return expectRow(res, sessionID)
}

// MarkStopped only touches sessions still running, so a late call cannot
// rewrite a terminal status.
func (l *SQLLedger) MarkStopped(ctx context.Context, sessionID int64) error {
	_, err := l.db.ExecContext(ctx, l.rebind(`
		UPDATE blast_sessions
		SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`), string(model.Stopped), l.now().UnixMilli(), sessionID, string(model.Running))
	return err
}

func (l *SQLLedger) ListSessions(ctx context.Context, ownerID string, limit, offset int) ([]model.SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := l.db.QueryContext(ctx, l.rebind(`
		SELECT id, owner_id, session_name, mode, status, contacts_count,
		       messages_sent, messages_failed, started_at, completed_at
		FROM blast_sessions
		WHERE owner_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`), ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SessionRecord
	for rows.Next() {
		var (
			r           model.SessionRecord
			mode        string
			status      string
			startedAt   int64
			completedAt sql.NullInt64
		)
		if err := rows.Scan(
			&r.ID,
			&r.OwnerID,
			&r.Name,
			&mode,
			&status,
			&r.ContactsCount,
			&r.SentCount,
			&r.FailedCount,
			&startedAt,
			&completedAt,
		); err != nil {
			return nil, err
		}

		r.Mode = model.ModeID(mode)
		r.Status = model.SessionStatus(status)
		r.StartedAt = time.UnixMilli(startedAt).UTC()
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64).UTC()
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *SQLLedger) ListOutcomes(ctx context.Context, ownerID string, sessionID int64) ([]model.MessageOutcome, error) {
	rows, err := l.db.QueryContext(ctx, l.rebind(`
		SELECT phone_number, status, error_message, remote_message_id, sent_at
		FROM message_logs
		WHERE blast_session_id = ? AND owner_id = ?
		ORDER BY id ASC
	`), sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageOutcome
	for rows.Next() {
		var (
			o        model.MessageOutcome
			status   string
			errMsg   sql.NullString
			remoteID sql.NullString
			sentAt   int64
		)
		if err := rows.Scan(&o.Phone, &status, &errMsg, &remoteID, &sentAt); err != nil {
			return nil, err
		}
		o.Success = status == outcomeSent
		o.Error = errMsg.String
		o.RemoteMessageID = remoteID.String
		o.At = time.UnixMilli(sentAt).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (l *SQLLedger) DailyStats(ctx context.Context, ownerID string, day time.Time) (map[model.ModeID]model.ModeStats, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	rows, err := l.db.QueryContext(ctx, l.rebind(`
		SELECT mode, COUNT(*), COALESCE(SUM(messages_sent), 0), COALESCE(SUM(messages_failed), 0)
		FROM blast_sessions
		WHERE owner_id = ? AND started_at >= ? AND started_at < ?
		GROUP BY mode
	`), ownerID, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[model.ModeID]model.ModeStats{
		model.ModeStandard: {},
		model.ModeSafe:     {},
	}
	for rows.Next() {
		var (
			mode string
			st   model.ModeStats
		)
		if err := rows.Scan(&mode, &st.Sessions, &st.Sent, &st.Failed); err != nil {
			return nil, err
		}
		out[model.ModeID(mode)] = st
	}
	return out, rows.Err()
}

func (l *SQLLedger) FailStale(ctx context.Context, before time.Time, keep []int64) (int64, error) {
	query := `
		UPDATE blast_sessions
		SET status = ?, completed_at = ?
		WHERE status = ? AND started_at < ?`
	args := []any{string(model.Failed), l.now().UnixMilli(), string(model.Running), before.UnixMilli()}

	if len(keep) > 0 {
		marks := make([]string, len(keep))
		for i, id := range keep {
			marks[i] = "?"
			args = append(args, id)
		}
		query += " AND id NOT IN (" + strings.Join(marks, ", ") + ")"
	}

	res, err := l.db.ExecContext(ctx, l.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (l *SQLLedger) rebind(query string) string {
	if l.dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var ErrSessionNotFound = errors.New("session not found")

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrSessionNotFound, id)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
