package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/sentinelops/sentinel/internal/risk"
)

// advisoryLockKey serialises concurrent Append calls across connections.
// The value is arbitrary but must be stable.
const advisoryLockKey = int64(7_410_082_291)

// PostgresLog persists the audit chain to PostgreSQL. It implements Log.
type PostgresLog struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresLog creates a PostgresLog backed by the given connection pool.
func NewPostgresLog(pool *pgxpool.Pool, logger *zap.Logger) *PostgresLog {
	return &PostgresLog{pool: pool, logger: logger}
}

// Init creates the audit table and the genesis row if they do not exist.
func (l *PostgresLog) Init(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			idx            INTEGER PRIMARY KEY,
			timestamp      TIMESTAMPTZ NOT NULL,
			subject        TEXT NOT NULL,
			network_score  DOUBLE PRECISION NOT NULL,
			behavior_score DOUBLE PRECISION NOT NULL,
			final_score    DOUBLE PRECISION NOT NULL,
			level          INTEGER NOT NULL,
			action         TEXT NOT NULL,
			error          TEXT NOT NULL DEFAULT '',
			prev_hash      TEXT NOT NULL,
			hash           TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("create audit table: %w", err)
	}

	if _, err := l.pool.Exec(ctx, `
		INSERT INTO audit_log (idx, timestamp, subject, network_score, behavior_score, final_score, level, action, error, prev_hash, hash)
		VALUES (0, $1, '', 0, 0, 0, 0, 'genesis', '', $2, $2)
		ON CONFLICT (idx) DO NOTHING`,
		time.Now().UTC(), GenesisHash,
	); err != nil {
		return fmt.Errorf("seed genesis record: %w", err)
	}
	return nil
}

// Append implements Log. It acquires a PostgreSQL advisory lock, reads the
// chain tail, computes the new record hash, and inserts, all within one
// transaction.
func (l *PostgresLog) Append(ctx context.Context, rec Record) (*Record, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	var prevIdx int
	var prevHash string
	if err := tx.QueryRow(ctx,
		"SELECT idx, hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&prevIdx, &prevHash); err != nil {
		return nil, fmt.Errorf("read audit tail: %w", err)
	}

	rec.Index = prevIdx + 1
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	// TIMESTAMPTZ keeps microseconds; hash what will actually be stored.
	rec.Timestamp = rec.Timestamp.UTC().Truncate(time.Microsecond)
	rec.PrevHash = prevHash
	rec.Hash = hashRecord(&rec)

	if _, err := tx.Exec(ctx,
		`INSERT INTO audit_log (idx, timestamp, subject, network_score, behavior_score, final_score, level, action, error, prev_hash, hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.Index, rec.Timestamp, rec.Subject,
		rec.NetworkScore, rec.BehaviorScore, rec.FinalScore,
		int(rec.Level), rec.Action, rec.Error,
		rec.PrevHash, rec.Hash,
	); err != nil {
		return nil, fmt.Errorf("insert audit record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit audit tx: %w", err)
	}

	l.logger.Debug("audit record appended",
		zap.Int("idx", rec.Index),
		zap.String("subject", rec.Subject),
		zap.String("action", rec.Action),
	)
	return &rec, nil
}

// Tail implements Log.
func (l *PostgresLog) Tail(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, `
		SELECT idx, timestamp, subject, network_score, behavior_score, final_score, level, action, error, prev_hash, hash
		FROM (
			SELECT * FROM audit_log ORDER BY idx DESC LIMIT $1
		) t ORDER BY idx ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit tail: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var level int
		if err := rows.Scan(
			&rec.Index, &rec.Timestamp, &rec.Subject,
			&rec.NetworkScore, &rec.BehaviorScore, &rec.FinalScore,
			&level, &rec.Action, &rec.Error,
			&rec.PrevHash, &rec.Hash,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		rec.Level = risk.Level(level)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Len implements Log.
func (l *PostgresLog) Len(ctx context.Context) (int, error) {
	var n int
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM audit_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit records: %w", err)
	}
	return n, nil
}

// Verify implements Log. The chain is streamed in index order and each
// record is checked against its predecessor.
func (l *PostgresLog) Verify(ctx context.Context) error {
	rows, err := l.pool.Query(ctx, `
		SELECT idx, timestamp, subject, network_score, behavior_score, final_score, level, action, error, prev_hash, hash
		FROM audit_log ORDER BY idx ASC`)
	if err != nil {
		return fmt.Errorf("query audit chain: %w", err)
	}
	defer rows.Close()

	prevHash := ""
	for rows.Next() {
		var rec Record
		var level int
		if err := rows.Scan(
			&rec.Index, &rec.Timestamp, &rec.Subject,
			&rec.NetworkScore, &rec.BehaviorScore, &rec.FinalScore,
			&level, &rec.Action, &rec.Error,
			&rec.PrevHash, &rec.Hash,
		); err != nil {
			return fmt.Errorf("scan audit record: %w", err)
		}
		rec.Level = risk.Level(level)

		if rec.Index == 0 {
			if rec.Hash != GenesisHash {
				return fmt.Errorf("genesis record has wrong hash: got %q", rec.Hash)
			}
		} else {
			if rec.PrevHash != prevHash {
				return fmt.Errorf("hash chain broken at index %d", rec.Index)
			}
			if rec.Hash != hashRecord(&rec) {
				return fmt.Errorf("record %d has invalid hash", rec.Index)
			}
		}
		prevHash = rec.Hash
	}
	return rows.Err()
}

// Root implements Log.
func (l *PostgresLog) Root(ctx context.Context) (string, error) {
	var hash string
	if err := l.pool.QueryRow(ctx,
		"SELECT hash FROM audit_log ORDER BY idx DESC LIMIT 1",
	).Scan(&hash); err != nil {
		return "", fmt.Errorf("read audit root: %w", err)
	}
	return hash, nil
}
