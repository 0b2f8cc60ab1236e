// Package feed ingests a live order-book WebSocket stream into the price
// caches the conversion/quote engines read from.
//
// One dial/read-loop goroutine per exchange, reconnecting with exponential
// backoff; decoded snapshots and updates merge straight into
// price.BookCache and price.TickCache.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"

	"github.com/aristath/stablesats/internal/price"
)

const (
	dialTimeout        = 30 * time.Second
	writeWait          = 10 * time.Second
	baseReconnectDelay = 2 * time.Second
	maxReconnectDelay  = time.Minute
)

// envelope mirrors the OKEx-style order-book push message shape: an
// {"arg":{...}} subscription tag, an action of "snapshot" or "update", and a
// data array of book sides plus an optional checksum.
type envelope struct {
	Arg    struct{ Channel, InstID string } `json:"arg"`
	Action string                           `json:"action"`
	Data   []struct {
		Asks     [][2]string `json:"asks"`
		Bids     [][2]string `json:"bids"`
		Ts       string      `json:"ts"`
		Checksum int32       `json:"checksum"`
	} `json:"data"`
}

// Feed dials a single instrument's order-book channel and keeps book/ticks
// current until Stop is called.
type Feed struct {
	url    string
	instID string

	book  *price.BookCache
	ticks *price.TickCache
	log   zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	stopCh  chan struct{}
	stopped bool
}

// New builds a Feed. url is the exchange's public order-book WebSocket
// endpoint; instID is the instrument to subscribe to (e.g. "BTC-USD-SWAP").
func New(url, instID string, book *price.BookCache, ticks *price.TickCache, log zerolog.Logger) *Feed {
	return &Feed{
		url:    url,
		instID: instID,
		book:   book,
		ticks:  ticks,
		log:    log.With().Str("component", "feed").Str("instrument", instID).Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start dials the feed and begins the read loop in the background,
// reconnecting with exponential backoff on any disconnect until ctx is
// cancelled or Stop is called.
func (f *Feed) Start(ctx context.Context) error {
	conn, err := f.dial(ctx)
	if err != nil {
		f.log.Warn().Err(err).Msg("initial feed connection failed, retrying in background")
		go f.reconnectLoop(ctx)
		return nil
	}
	go f.readLoop(ctx, conn)
	return nil
}

// Stop closes the connection and halts reconnection attempts.
func (f *Feed) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	conn := f.conn
	f.mu.Unlock()

	close(f.stopCh)
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}

	sub := map[string]any{
		"op":   "subscribe",
		"args": []map[string]string{{"channel": "books", "instId": f.instID}},
	}
	data, err := json.Marshal(sub)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "marshal subscribe")
		return nil, fmt.Errorf("marshal subscribe: %w", err)
	}
	writeCtx, writeCancel := context.WithTimeout(ctx, writeWait)
	defer writeCancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	f.log.Info().Msg("connected to order book feed")
	return conn, nil
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		f.mu.Lock()
		stopped := f.stopped
		f.mu.Unlock()
		if !stopped {
			go f.reconnectLoop(ctx)
		}
	}()

	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				f.log.Warn().Err(err).Msg("feed read error")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		if err := f.handleMessage(data); err != nil {
			f.log.Error().Err(err).Msg("failed to handle feed message")
		}
	}
}

func (f *Feed) reconnectLoop(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		attempt++
		delay := backoff(attempt)
		f.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting to feed")

		select {
		case <-time.After(delay):
		case <-f.stopCh:
			return
		case <-ctx.Done():
			return
		}

		conn, err := f.dial(ctx)
		if err != nil {
			f.log.Error().Err(err).Int("attempt", attempt).Msg("feed reconnect failed")
			continue
		}
		go f.readLoop(ctx, conn)
		return
	}
}

func backoff(attempt int) time.Duration {
	delay := time.Duration(float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1)))
	if delay > maxReconnectDelay {
		return maxReconnectDelay
	}
	return delay
}

func (f *Feed) handleMessage(data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		// Frames that are not JSON (e.g. a plain-text pong) are ignored
		// rather than reported; subscribe acks do parse and are dropped
		// below for carrying no data.
		return nil
	}
	if env.Arg.Channel != "books" || len(env.Data) == 0 {
		return nil
	}

	for _, side := range env.Data {
		asks, err := parseLevels(side.Asks)
		if err != nil {
			return fmt.Errorf("parse asks: %w", err)
		}
		bids, err := parseLevels(side.Bids)
		if err != nil {
			return fmt.Errorf("parse bids: %w", err)
		}
		ts := time.Now()
		if ms, err := decimal.NewFromString(side.Ts); err == nil {
			ts = time.UnixMilli(ms.IntPart())
		}

		switch env.Action {
		case "snapshot":
			f.book.ApplySnapshot(price.Snapshot{Timestamp: ts, Checksum: checksumString(side.Checksum), Asks: asks, Bids: bids})
		default: // "update", or absent for exchanges that don't distinguish
			if err := f.book.ApplyUpdate(price.Update{Timestamp: ts, Checksum: checksumString(side.Checksum), Asks: asks, Bids: bids}); err != nil {
				f.log.Warn().Err(err).Msg("book update rejected, waiting for next snapshot")
				continue
			}
		}

		if b := f.book.Current(); b != nil {
			askLevels, bidLevels := b.Asks(), b.Bids()
			if len(askLevels) > 0 && len(bidLevels) > 0 {
				f.ticks.Update(price.Tick{Timestamp: ts, AskPricePerSat: askLevels[0].Price, BidPricePerSat: bidLevels[0].Price})
			}
		}
	}
	return nil
}

func parseLevels(raw [][2]string) ([]price.Level, error) {
	levels := make([]price.Level, 0, len(raw))
	for _, pair := range raw {
		p, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", pair[0], err)
		}
		sz, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", pair[1], err)
		}
		levels = append(levels, price.Level{Price: p, VolumeCents: sz.Mul(p)})
	}
	return levels, nil
}

func checksumString(c int32) string {
	if c == 0 {
		return ""
	}
	return decimal.NewFromInt32(c).String()
}
