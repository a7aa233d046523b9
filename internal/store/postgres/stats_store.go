package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebwaine/autopricer/internal/domain"
)

// movingAvgAlpha weights the current count in the exponential moving average.
const movingAvgAlpha = 0.3

// StatsStore implements domain.StatsStore using PostgreSQL.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// Refresh recomputes an item's current listing counts from the listings table
// and blends them into the moving averages in one statement.
func (s *StatsStore) Refresh(ctx context.Context, itemID string) error {
	const query = `
		WITH counts AS (
			SELECT
				COUNT(*) FILTER (WHERE intent = 'buy')  AS buys,
				COUNT(*) FILTER (WHERE intent = 'sell') AS sells
			FROM listings WHERE item_id = $1
		)
		INSERT INTO listing_stats (
			item_id, current_buy_count, current_sell_count,
			moving_avg_buy_count, moving_avg_sell_count
		)
		SELECT $1, buys, sells, buys, sells FROM counts
		ON CONFLICT (item_id) DO UPDATE SET
			current_buy_count     = EXCLUDED.current_buy_count,
			current_sell_count    = EXCLUDED.current_sell_count,
			moving_avg_buy_count  = listing_stats.moving_avg_buy_count * (1 - $2::float8)
			                        + EXCLUDED.current_buy_count * $2::float8,
			moving_avg_sell_count = listing_stats.moving_avg_sell_count * (1 - $2::float8)
			                        + EXCLUDED.current_sell_count * $2::float8`

	if _, err := s.pool.Exec(ctx, query, itemID, movingAvgAlpha); err != nil {
		return fmt.Errorf("postgres: refresh stats %s: %w", itemID, err)
	}
	return nil
}

// Get returns the activity stats for one item.
func (s *StatsStore) Get(ctx context.Context, itemID string) (domain.ListingActivityStats, error) {
	var st domain.ListingActivityStats
	err := s.pool.QueryRow(ctx,
		`SELECT item_id, current_buy_count, current_sell_count,
		        moving_avg_buy_count, moving_avg_sell_count
		 FROM listing_stats WHERE item_id = $1`, itemID,
	).Scan(&st.ItemID, &st.CurrentBuyCount, &st.CurrentSellCount,
		&st.MovingAvgBuyCount, &st.MovingAvgSellCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ListingActivityStats{}, domain.ErrNotFound
		}
		return domain.ListingActivityStats{}, fmt.Errorf("postgres: get stats %s: %w", itemID, err)
	}
	return st, nil
}

// List returns activity stats for every tracked item.
func (s *StatsStore) List(ctx context.Context) ([]domain.ListingActivityStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT item_id, current_buy_count, current_sell_count,
		        moving_avg_buy_count, moving_avg_sell_count
		 FROM listing_stats`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stats: %w", err)
	}
	defer rows.Close()

	var out []domain.ListingActivityStats
	for rows.Next() {
		var st domain.ListingActivityStats
		if err := rows.Scan(&st.ItemID, &st.CurrentBuyCount, &st.CurrentSellCount,
			&st.MovingAvgBuyCount, &st.MovingAvgSellCount); err != nil {
			return nil, fmt.Errorf("postgres: scan stats: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list stats rows: %w", err)
	}
	return out, nil
}
