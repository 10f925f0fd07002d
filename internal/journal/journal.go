// Package journal persists one record per final transcript: what was heard,
// how it scored, and what the dispatcher did about it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/policy"
	"github.com/mattjoyce/go2voice/internal/storage"
)

// Record is one dispatch decision.
type Record struct {
	Seq         int64             `json:"seq"`
	UtteranceID string            `json:"utterance_id"`
	Source      string            `json:"source"`
	Text        string            `json:"text"`
	Normalized  string            `json:"normalized"`
	Intent      intent.ActionCode `json:"intent"`
	Action      intent.ActionCode `json:"action"`
	Score       float64           `json:"score"`
	Reason      policy.Reason     `json:"reason"`
	Accepted    bool              `json:"accepted"`
	Sent        bool              `json:"sent"`
	Posture     policy.Posture    `json:"posture"`
	Error       string            `json:"error,omitempty"`
	HeardAt     time.Time         `json:"heard_at"`
	DecidedAt   time.Time         `json:"decided_at"`
}

// Store reads and writes dispatch_log.
type Store struct {
	db *sql.DB
}

// Open opens the SQLite journal at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an already bootstrapped database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends r and returns its sequence number.
func (s *Store) Record(ctx context.Context, r Record) (int64, error) {
	var errText any
	if r.Error != "" {
		errText = r.Error
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_log(utterance_id, source, text, normalized, intent, action, score, reason, accepted, sent, posture, error, heard_at, decided_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.UtteranceID, r.Source, r.Text, r.Normalized, int(r.Intent), int(r.Action), r.Score,
		string(r.Reason), boolInt(r.Accepted), boolInt(r.Sent), r.Posture.String(), errText,
		r.HeardAt.UTC().Format(time.RFC3339Nano), r.DecidedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert dispatch_log: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dispatch_log id: %w", err)
	}
	return seq, nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT seq, utterance_id, source, text, normalized, intent, action, score, reason, accepted, sent, posture, error, heard_at, decided_at
FROM dispatch_log
ORDER BY seq DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch_log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                 Record
			intentCode, act   int
			reason, posture   string
			accepted, sent    int
			errText           sql.NullString
			heardAt, decideAt string
		)
		if err := rows.Scan(&r.Seq, &r.UtteranceID, &r.Source, &r.Text, &r.Normalized, &intentCode, &act,
			&r.Score, &reason, &accepted, &sent, &posture, &errText, &heardAt, &decideAt); err != nil {
			return nil, fmt.Errorf("scan dispatch_log: %w", err)
		}
		r.Intent = intent.ActionCode(intentCode)
		r.Action = intent.ActionCode(act)
		r.Reason = policy.Reason(reason)
		r.Accepted = accepted != 0
		r.Sent = sent != 0
		r.Posture = policy.ParsePosture(posture)
		r.Error = errText.String
		if r.HeardAt, err = time.Parse(time.RFC3339Nano, heardAt); err != nil {
			return nil, fmt.Errorf("parse heard_at %q: %w", heardAt, err)
		}
		if r.DecidedAt, err = time.Parse(time.RFC3339Nano, decideAt); err != nil {
			return nil, fmt.Errorf("parse decided_at %q: %w", decideAt, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch_log: %w", err)
	}
	return out, nil
}

// CountByReason tallies every record by decision reason.
func (s *Store) CountByReason(ctx context.Context) (map[policy.Reason]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reason, COUNT(*) FROM dispatch_log GROUP BY reason;`)
	if err != nil {
		return nil, fmt.Errorf("count dispatch_log: %w", err)
	}
	defer rows.Close()

	out := make(map[policy.Reason]int)
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, fmt.Errorf("scan dispatch_log count: %w", err)
		}
		out[policy.Reason(reason)] = n
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
