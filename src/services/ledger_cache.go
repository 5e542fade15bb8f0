// backend/src/services/ledger_cache.go
package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/username/taxdeclaration/backend/src/datasource"
	"github.com/username/taxdeclaration/backend/src/logger"
	"github.com/username/taxdeclaration/backend/src/models"
	"github.com/username/taxdeclaration/backend/src/parsers"
	"golang.org/x/sync/singleflight"
)

// LedgerCache memoizes the parsed ledger sheets keyed by the source
// modification time. Readers always see a complete snapshot: a rebuild
// builds a new one and swaps the pointer.
type LedgerCache struct {
	src       datasource.Source
	reader    *parsers.SheetReader
	scanLimit int

	current  atomic.Pointer[models.LedgerSnapshot]
	group    singleflight.Group
	rebuilds atomic.Int64
	now      func() time.Time

	// mu orders publishing against invalidation. Readers never take it.
	mu         sync.Mutex
	generation atomic.Uint64
}

// CacheStats is a point-in-time view of the cache for health reporting.
type CacheStats struct {
	Loaded        bool      `json:"loaded"`
	SourceModTime time.Time `json:"source_mod_time,omitempty"`
	LoadedAt      time.Time `json:"loaded_at,omitempty"`
	Entries       int       `json:"entries"`
	Balances      int       `json:"balances"`
	Truncated     bool      `json:"truncated"`
	Rebuilds      int64     `json:"rebuilds"`
}

// NewLedgerCache creates an empty cache. scanLimit > 0 caps the rows read per
// sheet; a capped snapshot is flagged as truncated.
func NewLedgerCache(src datasource.Source, reader *parsers.SheetReader, scanLimit int) *LedgerCache {
	return &LedgerCache{src: src, reader: reader, scanLimit: scanLimit, now: time.Now}
}

// Snapshot returns the current snapshot, rebuilding it first when the cache is
// empty or the source modification time differs from the one it was built at.
func (c *LedgerCache) Snapshot(ctx context.Context) (*models.LedgerSnapshot, error) {
	modTime, err := c.src.ModTime()
	if err != nil {
		return nil, &models.DataSourceError{Op: "ledger cache probe", Err: err}
	}
	if snap := c.current.Load(); snap != nil && snap.SourceModTime.Equal(modTime) {
		return snap, nil
	}
	return c.rebuild(ctx, modTime)
}

// Load forces a full rebuild regardless of the stored modification time.
func (c *LedgerCache) Load(ctx context.Context) (*models.LedgerSnapshot, error) {
	modTime, err := c.src.ModTime()
	if err != nil {
		return nil, &models.DataSourceError{Op: "ledger cache probe", Err: err}
	}
	c.drop()
	return c.rebuild(ctx, modTime)
}

// Invalidate drops the current snapshot. The next Snapshot call rebuilds, and
// a build already in flight will not publish its result.
func (c *LedgerCache) Invalidate() {
	c.drop()
	logger.Get().Info("Ledger cache invalidated")
}

func (c *LedgerCache) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation.Add(1)
	c.current.Store(nil)
}

// Stats reports the cache state.
func (c *LedgerCache) Stats() CacheStats {
	stats := CacheStats{Rebuilds: c.rebuilds.Load()}
	if snap := c.current.Load(); snap != nil {
		stats.Loaded = true
		stats.SourceModTime = snap.SourceModTime
		stats.LoadedAt = snap.LoadedAt
		stats.Entries = len(snap.Entries)
		stats.Balances = len(snap.Balances)
		stats.Truncated = snap.Truncated()
	}
	return stats
}

// rebuild collapses concurrent rebuilds of the same version into one scan. A
// version is the source modification time plus the invalidation generation.
func (c *LedgerCache) rebuild(ctx context.Context, modTime time.Time) (*models.LedgerSnapshot, error) {
	gen := c.generation.Load()
	key := strconv.FormatInt(modTime.UnixNano(), 10) + "/" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if snap := c.current.Load(); snap != nil && snap.SourceModTime.Equal(modTime) {
			return snap, nil
		}
		snap, err := c.build(modTime)
		if err != nil {
			return nil, err
		}
		c.publish(snap, gen)
		return snap, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.LedgerSnapshot), nil
	}
}

// publish makes snap current unless the cache was invalidated since the build
// started or the source moved on to another version meanwhile. Callers of
// that build still get snap.
func (c *LedgerCache) publish(snap *models.LedgerSnapshot, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation.Load() != gen {
		logger.Get().Debug("Ledger snapshot discarded, cache invalidated during build")
		return
	}
	if modTime, err := c.src.ModTime(); err != nil || !modTime.Equal(snap.SourceModTime) {
		logger.Get().Debug("Ledger snapshot discarded, source changed during build", "builtFor", snap.SourceModTime)
		return
	}
	c.current.Store(snap)
}

func (c *LedgerCache) build(modTime time.Time) (*models.LedgerSnapshot, error) {
	start := c.now()
	entries, ledgerScan, err := c.reader.ReadLedger(c.scanLimit)
	if err != nil {
		return nil, asDataSourceError("load ledger", err)
	}
	balances, balanceScan, err := c.reader.ReadBalances(c.scanLimit)
	if err != nil {
		return nil, asDataSourceError("load balances", err)
	}

	snap := &models.LedgerSnapshot{
		Entries:           entries,
		Balances:          balances,
		SourceModTime:     modTime,
		LoadedAt:          c.now(),
		LedgerTruncated:   ledgerScan.Truncated,
		BalancesTruncated: balanceScan.Truncated,
		SkippedRows:       ledgerScan.Skipped + balanceScan.Skipped,
	}
	c.rebuilds.Add(1)

	logger.Get().Info("Ledger cache rebuilt",
		"entries", len(entries),
		"balances", len(balances),
		"skippedRows", snap.SkippedRows,
		"sourceModTime", modTime,
		"duration", snap.LoadedAt.Sub(start))
	if snap.Truncated() {
		logger.Get().Warn("Ledger scan limit reached, aggregates may be incomplete", "scanLimit", c.scanLimit)
	}
	return snap, nil
}

func asDataSourceError(op string, err error) error {
	var dsErr *models.DataSourceError
	if errors.As(err, &dsErr) {
		return dsErr
	}
	return &models.DataSourceError{Op: op, Err: err}
}
