package store

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	fterrors "github.com/Aman-CERP/ftsindex/internal/errors"
	"github.com/Aman-CERP/ftsindex/internal/index"
)

// DefaultParticipantRetention is how long a participant row survives without being seen again.
const DefaultParticipantRetention = 7 * 24 * time.Hour

// ParticipantStore records which participant ids have been seen in which
// containers, so searches can recognise participant-id queries.
type ParticipantStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ index.ParticipantSink = (*ParticipantStore)(nil)

// NewParticipantStore creates the participant table if needed.
func NewParticipantStore(db *sql.DB) (*ParticipantStore, error) {
	const schema = `
	CREATE TABLE IF NOT EXISTS participant_index (
		container      TEXT NOT NULL,
		participant_id TEXT NOT NULL,
		last_indexed   INTEGER NOT NULL,
		PRIMARY KEY (container, participant_id)
	);
	CREATE INDEX IF NOT EXISTS idx_participant_id ON participant_index(participant_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fterrors.StorageError("failed to create participant table", err)
	}
	return &ParticipantStore{db: db, now: time.Now}, nil
}

// Upsert refreshes last_indexed for known pairs and inserts new ones, in one transaction.
func (s *ParticipantStore) Upsert(ctx context.Context, participants []index.Participant) error {
	if len(participants) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fterrors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO participant_index (container, participant_id, last_indexed)
		VALUES (?, ?, ?)
		ON CONFLICT (container, participant_id) DO UPDATE SET last_indexed = excluded.last_indexed`)
	if err != nil {
		return fterrors.StorageError("failed to prepare participant upsert", err)
	}
	defer stmt.Close()

	now := s.now().UnixMilli()
	for _, p := range participants {
		if _, err := stmt.ExecContext(ctx, p.Container, p.ParticipantID, now); err != nil {
			return fterrors.StorageError("failed to upsert participant", err).
				WithDetail("participant_id", p.ParticipantID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fterrors.StorageError("failed to commit participants", err)
	}
	return nil
}

// IsParticipant reports whether id has been seen in any container.
func (s *ParticipantStore) IsParticipant(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM participant_index WHERE participant_id = ?`, id).Scan(&n)
	if err != nil {
		return false, fterrors.StorageError("failed to query participants", err)
	}
	return n > 0, nil
}

// Purge deletes rows not seen within olderThan and returns how many were removed.
func (s *ParticipantStore) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM participant_index WHERE last_indexed < ?`, cutoff)
	if err != nil {
		return 0, fterrors.StorageError("failed to purge participants", err)
	}
	return res.RowsAffected()
}

// PurgeRunnable is the daily maintenance job, shaped for Service.AddRunnable.
// A non-positive retention uses DefaultParticipantRetention.
func (s *ParticipantStore) PurgeRunnable(retention time.Duration) index.Runnable {
	if retention <= 0 {
		retention = DefaultParticipantRetention
	}
	return func(ctx context.Context) error {
		n, err := s.Purge(ctx, retention)
		if err == nil && n > 0 {
			slog.Info("purged stale participants", slog.Int64("rows", n))
		}
		return err
	}
}
