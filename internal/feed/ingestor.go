// Package feed maintains the resilient connection to the upstream
// marketplace event stream and turns accepted events into listing mutations.
package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/calebwaine/autopricer/internal/domain"
)

// ConnState is the ingestor's connection lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// IDResolver resolves an item name to its stable identifier.
type IDResolver interface {
	ResolveID(ctx context.Context, name string) (string, error)
}

// Config holds ingestor parameters.
type Config struct {
	URL               string
	BlockedAttributes map[string]struct{}
	ExcludedSources   map[string]struct{}
	BackoffMin        time.Duration
	BackoffMax        time.Duration
}

// Ingestor owns the feed connection. Inbound events are processed
// sequentially in arrival order per connection; accepted updates go to the
// batched writer, deletions are applied individually and immediately.
// Connection failures only delay data freshness, never terminate the process.
type Ingestor struct {
	cfg      Config
	resolver IDResolver
	batcher  *Batcher
	listings domain.ListingStore
	stats    domain.StatsStore
	monitor  *Monitor
	logger   *slog.Logger

	state atomic.Int32

	// touched collects item ids seen since the last pricing pass.
	touchedMu sync.Mutex
	touched   map[string]struct{}

	// force carries liveness-monitor reconnect requests.
	force chan struct{}

	// dropped counts malformed or ineligible events.
	dropped atomic.Int64
}

// NewIngestor creates a stream ingestor.
func NewIngestor(
	cfg Config,
	resolver IDResolver,
	batcher *Batcher,
	listings domain.ListingStore,
	stats domain.StatsStore,
	monitor *Monitor,
	logger *slog.Logger,
) *Ingestor {
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		cfg:      cfg,
		resolver: resolver,
		batcher:  batcher,
		listings: listings,
		stats:    stats,
		monitor:  monitor,
		logger:   logger.With(slog.String("component", "ingestor")),
		touched:  make(map[string]struct{}),
		force:    make(chan struct{}, 1),
	}
}

// State returns the current connection state.
func (in *Ingestor) State() ConnState {
	return ConnState(in.state.Load())
}

func (in *Ingestor) setState(s ConnState) {
	in.state.Store(int32(s))
}

// ForceReconnect asks the ingestor to drop and re-establish its connection.
// Non-blocking; used by the liveness monitor.
func (in *Ingestor) ForceReconnect() {
	select {
	case in.force <- struct{}{}:
	default:
	}
}

// TakeTouched returns and clears the set of item ids touched since the last
// call. The pricing pipeline uses it to select items to reprice.
func (in *Ingestor) TakeTouched() []string {
	in.touchedMu.Lock()
	defer in.touchedMu.Unlock()

	ids := make([]string, 0, len(in.touched))
	for id := range in.touched {
		ids = append(ids, id)
	}
	in.touched = make(map[string]struct{})
	return ids
}

// Run connects and consumes events until the context is cancelled,
// reconnecting forever with jittered exponential backoff on any failure.
func (in *Ingestor) Run(ctx context.Context) error {
	defer in.setState(StateDisconnected)

	backoff := in.cfg.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		in.setState(StateConnecting)
		conn, err := dialWS(ctx, in.cfg.URL)
		if err != nil {
			in.logger.Warn("connect failed, retrying",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)
			if !sleepJittered(ctx, backoff) {
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, in.cfg.BackoffMax)
			continue
		}

		in.setState(StateConnected)
		in.monitor.SetConnected(true)
		backoff = in.cfg.BackoffMin
		in.logger.Info("feed connected", slog.String("url", in.cfg.URL))

		err = in.consume(ctx, conn)
		conn.Close()
		in.monitor.SetConnected(false)
		in.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		in.logger.Warn("feed disconnected, reconnecting", slog.String("error", err.Error()))
		if !sleepJittered(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, in.cfg.BackoffMax)
	}
}

// consume reads messages until the connection errors, the context is
// cancelled, or a reconnect is forced.
func (in *Ingestor) consume(ctx context.Context, conn *wsConn) error {
	msgs := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		for {
			data, err := conn.Read()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-conn.done:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.force:
			return domain.ErrFeedDisconnected
		case err := <-readErr:
			return err
		case data := <-msgs:
			in.monitor.Record()
			in.handleMessage(ctx, data)
		}
	}
}

func (in *Ingestor) handleMessage(ctx context.Context, data []byte) {
	events, err := DecodeEvents(data)
	if err != nil {
		in.dropped.Add(1)
		in.logger.Debug("dropping malformed message", slog.String("error", err.Error()))
		return
	}
	for _, ev := range events {
		in.handleEvent(ctx, ev)
	}
}

func (in *Ingestor) handleEvent(ctx context.Context, ev Event) {
	switch ev.Event {
	case EventListingUpdate:
		in.handleUpdate(ctx, ev.Payload)
	case EventListingDelete:
		in.handleDelete(ctx, ev.Payload)
	default:
		in.dropped.Add(1)
	}
}

// handleUpdate validates the listing and hands it to the batched writer.
func (in *Ingestor) handleUpdate(ctx context.Context, p Payload) {
	listing, ok := in.validate(ctx, p)
	if !ok {
		in.dropped.Add(1)
		return
	}

	in.batcher.Add(listing)

	in.touchedMu.Lock()
	in.touched[listing.ItemID] = struct{}{}
	in.touchedMu.Unlock()
}

// handleDelete removes the listing immediately, looking up the affected item
// id so its stats can be refreshed.
func (in *Ingestor) handleDelete(ctx context.Context, p Payload) {
	side := domain.Side(p.Intent)
	if side != domain.SideBuy && side != domain.SideSell {
		in.dropped.Add(1)
		return
	}

	itemID, err := in.listings.Delete(ctx, p.SteamID, p.Item.Name, side)
	if err != nil {
		if err != domain.ErrNotFound {
			in.logger.Warn("delete failed",
				slog.String("item", p.Item.Name),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	go func() {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := in.stats.Refresh(refreshCtx, itemID); err != nil {
			in.logger.Warn("stats refresh failed",
				slog.String("item_id", itemID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// validate applies the eligibility rules: a resolvable item id, a well-formed
// currency payload, no spell modifiers, no blocklisted attribute values, and
// not posted by an excluded source.
func (in *Ingestor) validate(ctx context.Context, p Payload) (domain.Listing, bool) {
	side := domain.Side(p.Intent)
	if side != domain.SideBuy && side != domain.SideSell {
		return domain.Listing{}, false
	}
	if p.Item.Name == "" {
		return domain.Listing{}, false
	}
	if p.Currencies.Keys < 0 || p.Currencies.Metal < 0 || p.Currencies.IsZero() {
		return domain.Listing{}, false
	}
	if len(p.Item.Spells) > 0 {
		return domain.Listing{}, false
	}
	for _, attr := range p.Item.Attributes {
		if _, blocked := in.cfg.BlockedAttributes[attr.Value]; blocked {
			return domain.Listing{}, false
		}
	}
	if _, excluded := in.cfg.ExcludedSources[p.SteamID]; excluded {
		return domain.Listing{}, false
	}
	if p.UserAgent != nil {
		if _, excluded := in.cfg.ExcludedSources[p.UserAgent.Client]; excluded {
			return domain.Listing{}, false
		}
	}

	itemID, err := in.resolver.ResolveID(ctx, p.Item.Name)
	if err != nil {
		return domain.Listing{}, false
	}

	return domain.Listing{
		ItemName:  p.Item.Name,
		ItemID:    itemID,
		Side:      side,
		Price:     p.Currencies,
		OwnerID:   p.SteamID,
		UpdatedAt: time.Now(),
	}, true
}

// Dropped returns the count of malformed or ineligible events.
func (in *Ingestor) Dropped() int64 {
	return in.dropped.Load()
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// sleepJittered sleeps for d plus up to 25% jitter, returning false when the
// context is cancelled first.
func sleepJittered(ctx context.Context, d time.Duration) bool {
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d + jitter):
		return true
	}
}
