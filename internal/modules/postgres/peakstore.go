package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"perpctl/pkg/db"
)

// PeakStore persists the running equity peak in a single-row table, backing
// internal/equity.Reconciler the way the teacher's own modules reach the
// database: through db.PgTxManager rather than a raw pgxpool handle.
type PeakStore struct {
	tx *db.PgTxManager
}

func NewPeakStore(tx *db.PgTxManager) *PeakStore {
	return &PeakStore{tx: tx}
}

const createPeakTable = `
CREATE TABLE IF NOT EXISTS equity_peak (
	id         SMALLINT PRIMARY KEY DEFAULT 1,
	peak       DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (s *PeakStore) EnsureSchema(ctx context.Context) error {
	_, err := s.tx.Conn().Exec(ctx, createPeakTable)
	return err
}

// LoadPeak returns the persisted peak, or 0 if no row has been written yet
// (equity.NewReconciler treats that as "no prior high-water mark").
func (s *PeakStore) LoadPeak() (float64, error) {
	ctx := context.Background()
	var peak float64
	err := s.tx.Conn().QueryRow(ctx, `SELECT peak FROM equity_peak WHERE id = 1`).Scan(&peak)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return peak, err
}

func (s *PeakStore) SavePeak(peak float64) error {
	ctx := context.Background()
	_, err := s.tx.Conn().Exec(ctx, `
		INSERT INTO equity_peak (id, peak, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET peak = EXCLUDED.peak, updated_at = EXCLUDED.updated_at
	`, peak)
	return err
}
