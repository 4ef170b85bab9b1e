package outbox

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-signals/internal/types"
	"github.com/rxtech-lab/argo-signals/pkg/errors"
)

// DuckDBStore persists the outbox in a DuckDB file. An empty path keeps it in memory.
type DuckDBStore struct {
	db  *sql.DB
	sq  squirrel.StatementBuilderType
	mu  sync.Mutex
	now func() time.Time
}

var _ Store = (*DuckDBStore)(nil)

func NewDuckDBStore(path string) (*DuckDBStore, error) {
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to create outbox directory", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorageFailed, "failed to open outbox database", err)
	}

	store := &DuckDBStore{
		db:  db,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		now: time.Now,
	}

	if err := store.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

func (s *DuckDBStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts_sent (
			hash TEXT PRIMARY KEY,
			ticker TEXT,
			event TEXT,
			slot_window TEXT,
			first_sent_ts TIMESTAMP,
			channels TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to create alerts_sent table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts_outbox (
			id TEXT,
			ts TIMESTAMP,
			channel TEXT,
			ticker TEXT,
			event TEXT,
			hash TEXT,
			status TEXT,
			resp_code INTEGER,
			resp_body TEXT,
			retry_count INTEGER
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to create alerts_outbox table", err)
	}

	return nil
}

func (s *DuckDBStore) AlreadySent(ctx context.Context, hash string) (bool, error) {
	var count int64

	err := s.sq.
		Select("COUNT(*)").
		From("alerts_sent").
		Where(squirrel.Eq{"hash": hash}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&count)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to look up sent alert", err)
	}

	return count > 0, nil
}

func (s *DuckDBStore) MarkSent(ctx context.Context, hash string, alert types.Alert, channel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, found, err := s.sent(ctx, hash)
	if err != nil {
		return err
	}

	if !found {
		_, err = s.sq.
			Insert("alerts_sent").
			Columns("hash", "ticker", "event", "slot_window", "first_sent_ts", "channels").
			Values(hash, alert.Ticker, string(alert.EventType), alert.WindowLabel(), s.now().UTC(), MergeChannels("", channel)).
			RunWith(s.db).
			ExecContext(ctx)
		if err != nil {
			return errors.Wrap(errors.ErrCodeStorageFailed, "failed to insert sent alert", err)
		}

		return nil
	}

	_, err = s.sq.
		Update("alerts_sent").
		Set("channels", MergeChannels(record.Channels, channel)).
		Where(squirrel.Eq{"hash": hash}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to update sent alert", err)
	}

	return nil
}

// Sent returns the stored record for hash.
func (s *DuckDBStore) Sent(ctx context.Context, hash string) (SentRecord, bool, error) {
	return s.sent(ctx, hash)
}

func (s *DuckDBStore) sent(ctx context.Context, hash string) (SentRecord, bool, error) {
	var (
		record SentRecord
		event  string
	)

	err := s.sq.
		Select("hash", "ticker", "event", "slot_window", "first_sent_ts", "channels").
		From("alerts_sent").
		Where(squirrel.Eq{"hash": hash}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&record.Hash, &record.Ticker, &event, &record.Window, &record.FirstSentAt, &record.Channels)
	if err == sql.ErrNoRows {
		return SentRecord{}, false, nil
	}

	if err != nil {
		return SentRecord{}, false, errors.Wrap(errors.ErrCodeQueryFailed, "failed to read sent alert", err)
	}

	record.Event = types.AlertEventType(event)

	return record, true, nil
}

func (s *DuckDBStore) LogAttempt(ctx context.Context, attempt Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}

	if attempt.Time.IsZero() {
		attempt.Time = s.now()
	}

	_, err := s.sq.
		Insert("alerts_outbox").
		Columns("id", "ts", "channel", "ticker", "event", "hash", "status", "resp_code", "resp_body", "retry_count").
		Values(
			attempt.ID, attempt.Time.UTC(), attempt.Channel, attempt.Ticker, string(attempt.Event), attempt.Hash,
			string(attempt.Status), attempt.RespCode, TrimBody(attempt.RespBody), attempt.RetryCount,
		).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStorageFailed, "failed to log outbox attempt", err)
	}

	return nil
}

// Attempts returns the logged attempts for hash, oldest first.
func (s *DuckDBStore) Attempts(ctx context.Context, hash string) ([]Attempt, error) {
	rows, err := s.sq.
		Select("id", "ts", "channel", "ticker", "event", "hash", "status", "resp_code", "resp_body", "retry_count").
		From("alerts_outbox").
		Where(squirrel.Eq{"hash": hash}).
		OrderBy("ts ASC").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query outbox", err)
	}
	defer rows.Close()

	attempts := make([]Attempt, 0)

	for rows.Next() {
		var (
			a             Attempt
			event, status string
		)

		if err := rows.Scan(&a.ID, &a.Time, &a.Channel, &a.Ticker, &event, &a.Hash, &status, &a.RespCode, &a.RespBody, &a.RetryCount); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan outbox row", err)
		}

		a.Event = types.AlertEventType(event)
		a.Status = Status(status)
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

func (s *DuckDBStore) Close() error {
	return s.db.Close()
}
