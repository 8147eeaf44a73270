package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ducminhle1904/tradeguard/internal/logger"
)

const (
	streamPingInterval   = 20 * time.Second
	streamReconnectDelay = 5 * time.Second
	defaultMaxTickAge    = 10 * time.Second
)

// StreamURL returns the v5 public stream endpoint for a product category
func StreamURL(category string, testnet bool) string {
	if category == "" {
		category = "spot"
	}
	host := "stream.bybit.com"
	if testnet {
		host = "stream-testnet.bybit.com"
	}
	return fmt.Sprintf("wss://%s/v5/public/%s", host, category)
}

type tick struct {
	price float64
	at    time.Time
}

// TickerStream keeps the last traded price of every subscribed symbol from the
// public tickers topic. Symbols are subscribed the first time GetPrice asks for them.
type TickerStream struct {
	url    string
	maxAge time.Duration
	log    *logger.Logger

	mu      sync.RWMutex
	ticks   map[string]tick
	topics  map[string]struct{}
	conn    *websocket.Conn
	writeMu sync.Mutex
	now     func() time.Time
}

// NewTickerStream creates a stream for url. Prices older than maxAge are treated as missing.
func NewTickerStream(url string, maxAge time.Duration, log *logger.Logger) *TickerStream {
	if maxAge <= 0 {
		maxAge = defaultMaxTickAge
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TickerStream{
		url:    url,
		maxAge: maxAge,
		log:    log,
		ticks:  make(map[string]tick),
		topics: make(map[string]struct{}),
		now:    time.Now,
	}
}

// Subscribe adds symbols to the stream. Safe to call before Run.
func (s *TickerStream) Subscribe(symbols ...string) error {
	var fresh []string
	s.mu.Lock()
	for _, sym := range symbols {
		topic := "tickers." + strings.ToUpper(sym)
		if _, ok := s.topics[topic]; ok {
			continue
		}
		s.topics[topic] = struct{}{}
		fresh = append(fresh, topic)
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil || len(fresh) == 0 {
		return nil
	}
	return s.send(conn, map[string]interface{}{"op": "subscribe", "args": fresh})
}

// GetPrice returns the streamed price. A miss subscribes the symbol and returns an error
// so a fallback source can answer until the first tick arrives.
func (s *TickerStream) GetPrice(ctx context.Context, symbol string) (float64, error) {
	key := strings.ToUpper(symbol)
	s.mu.RLock()
	t, ok := s.ticks[key]
	s.mu.RUnlock()

	if ok && s.now().Sub(t.at) <= s.maxAge {
		return t.price, nil
	}
	if err := s.Subscribe(key); err != nil {
		s.log.Warning("Ticker subscribe %s failed: %v", key, err)
	}
	if ok {
		return 0, fmt.Errorf("stream price for %s is stale (%s old)", key, s.now().Sub(t.at).Round(time.Second))
	}
	return 0, fmt.Errorf("no stream price for %s yet", key)
}

// Run connects and keeps the stream alive until ctx is done, reconnecting after failures
func (s *TickerStream) Run(ctx context.Context) {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warning("Ticker stream dropped, reconnecting in %s: %v", streamReconnectDelay, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(streamReconnectDelay):
		}
	}
}

func (s *TickerStream) session(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.url, err)
	}

	s.mu.Lock()
	s.conn = conn
	topics := make([]string, 0, len(s.topics))
	for topic := range s.topics {
		topics = append(topics, topic)
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	if len(topics) > 0 {
		if err := s.send(conn, map[string]interface{}{"op": "subscribe", "args": topics}); err != nil {
			return err
		}
	}
	s.log.Info("Ticker stream connected to %s (%d topics)", s.url, len(topics))

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handleMessage(msg)
	}
}

// keepAlive pings on an interval and closes conn when ctx ends so ReadMessage unblocks
func (s *TickerStream) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			if err := s.send(conn, map[string]string{"op": "ping"}); err != nil {
				s.log.Warning("Ticker stream ping failed: %v", err)
				conn.Close()
				return
			}
		}
	}
}

func (s *TickerStream) send(conn *websocket.Conn, v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(v)
}

type streamMessage struct {
	Topic string `json:"topic"`
	Op    string `json:"op"`
	Data  struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
	} `json:"data"`
	Ts      int64  `json:"ts"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
}

// handleMessage applies ticker snapshots and deltas. Deltas without lastPrice are ignored.
func (s *TickerStream) handleMessage(raw []byte) {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.log.Debug("Unparseable stream frame: %v", err)
		return
	}
	if msg.Op == "subscribe" && msg.Success != nil && !*msg.Success {
		s.log.Warning("Ticker subscribe rejected: %s", msg.RetMsg)
		return
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") || msg.Data.LastPrice == "" {
		return
	}

	price := parseFloat64(msg.Data.LastPrice)
	if price <= 0 {
		return
	}
	symbol := msg.Data.Symbol
	if symbol == "" {
		symbol = strings.TrimPrefix(msg.Topic, "tickers.")
	}

	s.mu.Lock()
	s.ticks[strings.ToUpper(symbol)] = tick{price: price, at: s.now()}
	s.mu.Unlock()
}
