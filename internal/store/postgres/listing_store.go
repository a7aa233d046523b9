package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/calebwaine/autopricer/internal/domain"
)

// ListingStore implements domain.ListingStore using PostgreSQL.
type ListingStore struct {
	pool *pgxpool.Pool
}

// NewListingStore creates a ListingStore backed by the given connection pool.
func NewListingStore(pool *pgxpool.Pool) *ListingStore {
	return &ListingStore{pool: pool}
}

const upsertListingSQL = `
	INSERT INTO listings (name, item_id, currencies, intent, updated, owner_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (name, item_id, intent, owner_id) DO UPDATE SET
		currencies = EXCLUDED.currencies,
		updated    = EXCLUDED.updated`

// GetListings returns the current listings for an item name on one side.
func (s *ListingStore) GetListings(ctx context.Context, itemName string, side domain.Side) ([]domain.Listing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, item_id, currencies, intent, updated, owner_id
		 FROM listings WHERE name = $1 AND intent = $2`,
		itemName, string(side),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: get listings %s/%s: %w", itemName, side, err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get listings rows: %w", err)
	}
	return listings, nil
}

// UpsertBatch writes all listings in a single batch round-trip. Replaying the
// same listing twice leaves exactly one row (last write wins on price/time).
func (s *ListingStore) UpsertBatch(ctx context.Context, listings []domain.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, l := range listings {
		currencies, err := json.Marshal(l.Price)
		if err != nil {
			return fmt.Errorf("postgres: marshal currencies for %s: %w", l.ItemName, err)
		}
		batch.Queue(upsertListingSQL,
			l.ItemName, l.ItemID, currencies, string(l.Side), l.UpdatedAt.Unix(), l.OwnerID,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range listings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert listing batch item %d: %w", i, err)
		}
	}
	return nil
}

// Delete removes one owner's listing and returns the affected item id so the
// caller can refresh that item's stats.
func (s *ListingStore) Delete(ctx context.Context, ownerID, itemName string, side domain.Side) (string, error) {
	var itemID string
	err := s.pool.QueryRow(ctx,
		`SELECT item_id FROM listings WHERE owner_id = $1 AND name = $2 AND intent = $3`,
		ownerID, itemName, string(side),
	).Scan(&itemID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("postgres: lookup listing for delete: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`DELETE FROM listings WHERE owner_id = $1 AND name = $2 AND intent = $3`,
		ownerID, itemName, string(side),
	)
	if err != nil {
		return "", fmt.Errorf("postgres: delete listing: %w", err)
	}
	return itemID, nil
}

// staleGroup is one DELETE's worth of retention work: the item ids on one
// side whose activity band maps to the same age cutoff.
type staleGroup struct {
	side   domain.Side
	cutoff int64
	ids    []string
}

// staleGroups buckets item ids by activity band per side. Buy and sell sides
// band independently, so one item can be past its window on the active side
// while still current on the quiet one.
func staleGroups(now time.Time, stats []domain.ListingActivityStats) []*staleGroup {
	byBand := make(map[string]*staleGroup)
	var ordered []*staleGroup

	add := func(side domain.Side, avg float64, itemID string) {
		band := domain.BandFor(avg)
		key := string(side) + "/" + string(band)
		g, ok := byBand[key]
		if !ok {
			g = &staleGroup{
				side:   side,
				cutoff: now.Add(-domain.RetentionWindow(band)).Unix(),
			}
			byBand[key] = g
			ordered = append(ordered, g)
		}
		g.ids = append(g.ids, itemID)
	}

	for _, st := range stats {
		add(domain.SideBuy, st.MovingAvgBuyCount, st.ItemID)
		add(domain.SideSell, st.MovingAvgSellCount, st.ItemID)
	}
	return ordered
}

// DeleteStale applies the banded retention policy. Item ids are grouped by
// activity band per side so each band needs only one DELETE, and a failsafe
// pass removes anything older than the hard ceiling regardless of stats.
func (s *ListingStore) DeleteStale(ctx context.Context, stats []domain.ListingActivityStats) (int64, error) {
	now := time.Now()

	var deleted int64
	for _, g := range staleGroups(now, stats) {
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM listings WHERE intent = $1 AND updated < $2 AND item_id = ANY($3)`,
			string(g.side), g.cutoff, g.ids,
		)
		if err != nil {
			return deleted, fmt.Errorf("postgres: delete stale listings: %w", err)
		}
		deleted += tag.RowsAffected()
	}

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM listings WHERE updated < $1`,
		now.Add(-domain.RetentionFailsafe).Unix(),
	)
	if err != nil {
		return deleted, fmt.Errorf("postgres: failsafe delete: %w", err)
	}
	deleted += tag.RowsAffected()

	return deleted, nil
}

func scanListing(row pgx.Row) (domain.Listing, error) {
	var (
		l          domain.Listing
		currencies []byte
		intent     string
		updated    int64
	)
	if err := row.Scan(&l.ItemName, &l.ItemID, &currencies, &intent, &updated, &l.OwnerID); err != nil {
		return domain.Listing{}, err
	}
	if err := json.Unmarshal(currencies, &l.Price); err != nil {
		return domain.Listing{}, err
	}
	l.Side = domain.Side(intent)
	l.UpdatedAt = time.Unix(updated, 0)
	return l, nil
}
