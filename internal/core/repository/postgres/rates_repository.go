package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Nzyazin/ratecache/internal/core/logger"
	"github.com/Nzyazin/ratecache/internal/core/models"
	"github.com/Nzyazin/ratecache/internal/core/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS rate_snapshots (
    base       CHAR(3)     PRIMARY KEY,
    fetched_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rates (
    base CHAR(3)          NOT NULL REFERENCES rate_snapshots (base) ON DELETE CASCADE,
    code CHAR(3)          NOT NULL,
    rate DOUBLE PRECISION NOT NULL CHECK (rate > 0),
    PRIMARY KEY (base, code)
);`

const (
	selectSnapshotQuery = `SELECT base, fetched_at FROM rate_snapshots WHERE base = $1`
	selectRatesQuery    = `SELECT code, rate FROM rates WHERE base = $1`
	upsertSnapshotQuery = `INSERT INTO rate_snapshots (base, fetched_at) VALUES ($1, $2)
        ON CONFLICT (base) DO UPDATE SET fetched_at = EXCLUDED.fetched_at`
	deleteRatesQuery = `DELETE FROM rates WHERE base = $1`
	insertRateQuery  = `INSERT INTO rates (base, code, rate) VALUES ($1, $2, $3)`
)

type snapshotRow struct {
	Base      string    `db:"base"`
	FetchedAt time.Time `db:"fetched_at"`
}

type rateRow struct {
	Code string  `db:"code"`
	Rate float64 `db:"rate"`
}

// RateRepo stores one snapshot row per base plus its rates.
type RateRepo struct {
	db  *sqlx.DB
	log logger.Logger
}

func NewPostgresRateRepo(db *sqlx.DB, log logger.Logger) *RateRepo {
	return &RateRepo{
		db:  db,
		log: log,
	}
}

var _ repository.RateRepository = (*RateRepo)(nil)

// Migrate creates the snapshot tables if they do not exist.
func (r *RateRepo) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate rate tables: %w", err)
	}
	return nil
}

func (r *RateRepo) Load(ctx context.Context, base models.CurrencyCode) (models.CachedRates, error) {
	var snapshot snapshotRow
	err := r.db.GetContext(ctx, &snapshot, selectSnapshotQuery, base.String())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CachedRates{}, fmt.Errorf("%w: base %s", repository.ErrNotFound, base)
		}
		return models.CachedRates{}, fmt.Errorf("error getting snapshot: %w", err)
	}

	var rows []rateRow
	if err := r.db.SelectContext(ctx, &rows, selectRatesQuery, base.String()); err != nil {
		return models.CachedRates{}, fmt.Errorf("error getting rates: %w", err)
	}

	rates := make(map[models.CurrencyCode]float64, len(rows))
	for _, row := range rows {
		rates[models.CurrencyCode(row.Code)] = row.Rate
	}

	table, err := models.NewRateTable(base, rates)
	if err != nil {
		return models.CachedRates{}, fmt.Errorf("stored snapshot is invalid: %w", err)
	}

	return models.CachedRates{
		Table:     table,
		FetchedAt: snapshot.FetchedAt,
		Base:      base,
	}, nil
}

func (r *RateRepo) Save(ctx context.Context, rates models.CachedRates) (err error) {
	var isCommitted bool
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		r.log.Error("Error beginning transaction",
			logger.ErrorField("error", err))
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	defer func() {
		if err != nil && !isCommitted {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.log.Error("Transaction rollback failed",
					logger.ErrorField("error", rbErr))
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			} else {
				r.log.Warn("Transaction rolled back due to error",
					logger.ErrorField("error", err))
			}
		}
	}()

	base := rates.Base.String()

	if _, err = tx.ExecContext(ctx, upsertSnapshotQuery, base, rates.FetchedAt.UTC()); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	if _, err = tx.ExecContext(ctx, deleteRatesQuery, base); err != nil {
		return fmt.Errorf("delete old rates: %w", err)
	}

	for _, code := range rates.Table.Codes() {
		rate, _ := rates.Table.Rate(code)
		if _, err = tx.ExecContext(ctx, insertRateQuery, base, code.String(), rate); err != nil {
			return fmt.Errorf("insert rate %s: %w", code, err)
		}
	}

	if err = tx.Commit(); err != nil {
		r.log.Error("Error committing transaction",
			logger.ErrorField("error", err))
		return fmt.Errorf("commit failed: %w", err)
	}

	isCommitted = true
	return nil
}
