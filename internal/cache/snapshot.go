// Package cache keeps the latest circulating-supply snapshot.
package cache

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"

	klog "github.com/cruxpool/flux-insight-api/internal/log"
	"github.com/cruxpool/flux-insight-api/internal/metrics"
	"github.com/cruxpool/flux-insight-api/internal/storage"
	"github.com/cruxpool/flux-insight-api/internal/supply"
)

// DefaultTTL is used when a non-positive TTL is configured.
const DefaultTTL = 30 * time.Second

// KeyPrefix namespaces snapshot records in the shared database.
const KeyPrefix = "supply/"

var latestKey = []byte("latest")

// HeightSource returns the current chain height.
type HeightSource interface {
	BlockCount(ctx context.Context) (int64, error)
}

// Snapshot is the supply computed at one height.
type Snapshot struct {
	Height    int64           `json:"height"`
	Halvings  int64           `json:"halvings"`
	Total     decimal.Decimal `json:"total"`
	Rounded   int64           `json:"rounded"`
	Formatted string          `json:"formatted"`
	ETag      string          `json:"etag"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Supply caches the most recent snapshot in memory and in the database.
type Supply struct {
	db     storage.DB
	source HeightSource
	calc   *supply.Calculator
	ttl    time.Duration

	mu   sync.RWMutex
	snap *Snapshot

	// Serializes Update so concurrent misses compute once.
	updateMu sync.Mutex
}

// New creates a snapshot cache. db may be nil to disable persistence.
func New(db storage.DB, source HeightSource, calc *supply.Calculator, ttl time.Duration) *Supply {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if db != nil {
		db = storage.NewPrefixDB(db, []byte(KeyPrefix))
	}
	return &Supply{db: db, source: source, calc: calc, ttl: ttl}
}

// TTL returns the freshness window.
func (c *Supply) TTL() time.Duration {
	return c.ttl
}

// Load restores the persisted snapshot, if any. A record whose ETag does not
// match its contents is discarded.
func (c *Supply) Load() error {
	if c.db == nil {
		return nil
	}
	data, err := c.db.Get(latestKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		klog.Cache.Warn().Err(err).Msg("Discarding unreadable persisted snapshot")
		return c.discard()
	}
	if s.ETag != ETag(s.Height, s.Formatted) {
		klog.Cache.Warn().Int64("height", s.Height).Msg("Discarding persisted snapshot with bad etag")
		return c.discard()
	}
	if res, err := c.calc.Compute(s.Height); err != nil || res.Formatted != s.Formatted {
		klog.Cache.Warn().Int64("height", s.Height).Msg("Discarding persisted snapshot from a different schedule")
		return c.discard()
	}

	c.mu.Lock()
	c.snap = &s
	c.mu.Unlock()
	c.observe(s)

	klog.Cache.Info().
		Int64("height", s.Height).
		Str("supply", s.Formatted).
		Msg("Loaded persisted supply snapshot")
	return nil
}

// Get returns the current snapshot and whether it is within the TTL.
func (c *Supply) Get() (Snapshot, bool) {
	c.mu.RLock()
	s := c.snap
	c.mu.RUnlock()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, time.Since(s.UpdatedAt) <= c.ttl
}

// Fresh returns the cached snapshot when it is within the TTL and otherwise
// recomputes it. Errors from the height source are returned as-is.
func (c *Supply) Fresh(ctx context.Context) (Snapshot, error) {
	if s, fresh := c.Get(); fresh {
		return s, nil
	}
	return c.Update(ctx)
}

// Update fetches the chain height and computes the supply at it.
func (c *Supply) Update(ctx context.Context) (Snapshot, error) {
	c.updateMu.Lock()
	defer c.updateMu.Unlock()

	height, err := c.source.BlockCount(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	res, err := c.calc.Compute(height)
	if err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{
		Height:    res.Height,
		Halvings:  res.Halvings,
		Total:     res.Total,
		Rounded:   res.Rounded,
		Formatted: res.Formatted,
		ETag:      ETag(res.Height, res.Formatted),
		UpdatedAt: time.Now(),
	}
	c.store(s)
	c.observe(s)

	klog.Cache.Debug().
		Int64("height", s.Height).
		Str("supply", s.Formatted).
		Msg("Supply snapshot updated")
	return s, nil
}

// Run refreshes the snapshot every TTL until ctx is done.
func (c *Supply) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		if _, err := c.Update(ctx); err != nil && ctx.Err() == nil {
			klog.Cache.Warn().Err(err).Msg("Supply refresh failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Supply) discard() error {
	if err := c.db.Delete(latestKey); err != nil {
		return fmt.Errorf("discard snapshot: %w", err)
	}
	return nil
}

func (c *Supply) store(s Snapshot) {
	c.mu.Lock()
	c.snap = &s
	c.mu.Unlock()

	if c.db == nil {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		klog.Cache.Error().Err(err).Msg("Encode snapshot")
		return
	}
	if err := c.db.Put(latestKey, data); err != nil {
		klog.Cache.Warn().Err(err).Msg("Persist snapshot failed")
	}
}

func (c *Supply) observe(s Snapshot) {
	coins, _ := s.Total.Float64()
	metrics.CirculatingCoins.Set(coins)
	metrics.SupplyHeight.Set(float64(s.Height))
}

// ETag returns the entity tag for the supply formatted at height.
func ETag(height int64, formatted string) string {
	h := blake3.New()
	h.Write([]byte(strconv.FormatInt(height, 10)))
	h.Write([]byte{0})
	h.Write([]byte(formatted))
	return `"` + hex.EncodeToString(h.Sum(nil)) + `"`
}
