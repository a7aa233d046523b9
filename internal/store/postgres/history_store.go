package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebwaine/autopricer/internal/domain"
)

// HistoryStore implements domain.HistoryStore using PostgreSQL. The table is
// append-only; rows past the retention window are archived and pruned by the
// scheduler.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a HistoryStore backed by the given connection pool.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Append writes one emitted price sample.
func (s *HistoryStore) Append(ctx context.Context, entry domain.PriceHistoryEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_history (item_id, buy_metal, sell_metal, timestamp)
		 VALUES ($1, $2, $3, $4)`,
		entry.ItemID, entry.BuyMetal, entry.SellMetal, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: append history %s: %w", entry.ItemID, err)
	}
	return nil
}

// Recent returns up to limit samples for an item no older than maxAge, newest
// first.
func (s *HistoryStore) Recent(ctx context.Context, itemID string, limit int, maxAge time.Duration) ([]domain.PriceHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, buy_metal, sell_metal, timestamp
		 FROM price_history
		 WHERE item_id = $1 AND timestamp >= $2
		 ORDER BY timestamp DESC
		 LIMIT $3`,
		itemID, time.Now().Add(-maxAge), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent history %s: %w", itemID, err)
	}
	defer rows.Close()

	var out []domain.PriceHistoryEntry
	for rows.Next() {
		var e domain.PriceHistoryEntry
		if err := rows.Scan(&e.ItemID, &e.BuyMetal, &e.SellMetal, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: recent history rows: %w", err)
	}
	return out, nil
}

// OlderThan returns up to limit samples older than cutoff, oldest first, for
// archival.
func (s *HistoryStore) OlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.PriceHistoryEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, buy_metal, sell_metal, timestamp
		 FROM price_history
		 WHERE timestamp < $1
		 ORDER BY timestamp ASC
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: history older than %s: %w", cutoff, err)
	}
	defer rows.Close()

	var out []domain.PriceHistoryEntry
	for rows.Next() {
		var e domain.PriceHistoryEntry
		if err := rows.Scan(&e.ItemID, &e.BuyMetal, &e.SellMetal, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: history older rows: %w", err)
	}
	return out, nil
}

// PruneBefore deletes samples older than cutoff and reports the row count.
func (s *HistoryStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM price_history WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: prune history: %w", err)
	}
	return tag.RowsAffected(), nil
}
