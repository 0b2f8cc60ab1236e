package price

import (
	"errors"
	"hash/crc32"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNoSnapshot is returned when an Update arrives before any Snapshot has
// ever been applied.
var ErrNoSnapshot = errors.New("price: no snapshot to merge update into")

// ErrChecksumMismatch is returned when a merged book's computed checksum
// disagrees with the wire payload's checksum. The cache is discarded: the
// caller must wait for the next Snapshot.
var ErrChecksumMismatch = errors.New("price: order book checksum mismatch, cache discarded")

// Level is one price/volume pair in an order book side. Volume is
// denominated in cents of quote currency.
type Level struct {
	Price       decimal.Decimal
	VolumeCents decimal.Decimal
}

// Book is the merged order-book view for one exchange: asks ascending by
// price, bids descending, keyed internally by the exact decimal string so
// repeated updates at the same price replace rather than duplicate.
type Book struct {
	Timestamp time.Time
	Checksum  string
	asks      map[string]decimal.Decimal
	bids      map[string]decimal.Decimal
}

func newBook() *Book {
	return &Book{asks: make(map[string]decimal.Decimal), bids: make(map[string]decimal.Decimal)}
}

func (b *Book) clone() *Book {
	cp := newBook()
	cp.Timestamp = b.Timestamp
	cp.Checksum = b.Checksum
	for k, v := range b.asks {
		cp.asks[k] = v
	}
	for k, v := range b.bids {
		cp.bids[k] = v
	}
	return cp
}

// Asks returns ask levels sorted ascending by price.
func (b *Book) Asks() []Level { return sortedLevels(b.asks, true) }

// Bids returns bid levels sorted descending by price.
func (b *Book) Bids() []Level { return sortedLevels(b.bids, false) }

func sortedLevels(side map[string]decimal.Decimal, ascending bool) []Level {
	levels := make([]Level, 0, len(side))
	for priceStr, vol := range side {
		p, _ := decimal.NewFromString(priceStr)
		levels = append(levels, Level{Price: p, VolumeCents: vol})
	}
	sort.Slice(levels, func(i, j int) bool {
		if ascending {
			return levels[i].Price.LessThan(levels[j].Price)
		}
		return levels[i].Price.GreaterThan(levels[j].Price)
	})
	return levels
}

func applyLevels(side map[string]decimal.Decimal, levels []Level) {
	for _, lvl := range levels {
		key := lvl.Price.String()
		if lvl.VolumeCents.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = lvl.VolumeCents
	}
}

// Snapshot is a full-book replacement payload.
type Snapshot struct {
	Timestamp time.Time
	Checksum  string
	Asks      []Level
	Bids      []Level
}

// Update is an incremental merge payload: zero-quantity levels delete,
// non-zero levels insert or replace.
type Update struct {
	Timestamp time.Time
	Checksum  string
	Asks      []Level
	Bids      []Level
}

// BookCache holds the latest merged Book for one exchange, guarded by a
// read/write lock so readers always see a consistent snapshot.
type BookCache struct {
	mu   sync.RWMutex
	book *Book
}

// NewBookCache creates an empty cache.
func NewBookCache() *BookCache { return &BookCache{} }

// ApplySnapshot replaces the cached book wholesale.
func (c *BookCache) ApplySnapshot(s Snapshot) {
	b := newBook()
	b.Timestamp = s.Timestamp
	b.Checksum = s.Checksum
	applyLevels(b.asks, s.Asks)
	applyLevels(b.bids, s.Bids)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.book = b
}

// ApplyUpdate merges u into the cached book. Updates older than the cached
// snapshot are discarded silently. A checksum mismatch discards the whole
// cache (ErrNoSnapshot/ErrChecksumMismatch are returned for callers that
// want to log it, but both are recoverable: the next Snapshot repairs state).
func (c *BookCache) ApplyUpdate(u Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.book == nil {
		return ErrNoSnapshot
	}
	if !u.Timestamp.After(c.book.Timestamp) {
		return nil
	}

	merged := c.book.clone()
	applyLevels(merged.asks, u.Asks)
	applyLevels(merged.bids, u.Bids)
	merged.Timestamp = u.Timestamp

	computed := checksum(merged)
	if u.Checksum != "" && computed != u.Checksum {
		c.book = nil
		return ErrChecksumMismatch
	}
	merged.Checksum = computed
	c.book = merged
	return nil
}

// Current returns a read-only copy of the currently cached book, or nil if
// no Snapshot has ever been applied.
func (c *BookCache) Current() *Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.book == nil {
		return nil
	}
	return c.book.clone()
}

// checksum mirrors the common exchange convention of CRC32 over the
// colon-joined top-of-book price:qty pairs, alternating bid/ask, best first.
func checksum(b *Book) string {
	const depth = 25
	asks := b.Asks()
	bids := b.Bids()
	if len(asks) > depth {
		asks = asks[:depth]
	}
	if len(bids) > depth {
		bids = bids[:depth]
	}

	var parts []string
	for i := 0; i < depth; i++ {
		if i < len(bids) {
			parts = append(parts, bids[i].Price.String()+":"+bids[i].VolumeCents.String())
		}
		if i < len(asks) {
			parts = append(parts, asks[i].Price.String()+":"+asks[i].VolumeCents.String())
		}
	}
	sum := crc32.ChecksumIEEE([]byte(strings.Join(parts, ":")))
	return decimal.NewFromInt(int64(sum)).String()
}
