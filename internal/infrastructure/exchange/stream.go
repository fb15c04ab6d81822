package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

const (
	handshakeTimeout = 10 * time.Second
	closeGrace       = time.Second
	frameBuffer      = 256
)

// StreamFeed opens Binance combined ticker streams: one websocket carrying
// <symbol>@ticker for every requested symbol.
type StreamFeed struct {
	baseURL string
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

func NewStreamFeed(baseURL string, logger *zap.Logger) *StreamFeed {
	return &StreamFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger,
	}
}

// StreamURL builds the combined-stream URL for symbols.
func (f *StreamFeed) StreamURL(symbols []string) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@ticker"
	}
	return f.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

func (f *StreamFeed) SubscribeTickers(ctx context.Context, symbols []string) (domain.TickerStream, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to subscribe")
	}
	conn, resp, err := f.dialer.DialContext(ctx, f.StreamURL(symbols), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial stream (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}
	f.logger.Debug("Stream connected", zap.Int("symbols", len(symbols)))

	s := &tickerStream{
		conn:   conn,
		frames: make(chan []byte, frameBuffer),
		done:   make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

// tickerStream reads frames on its own goroutine so Recv can wait with a
// timeout without touching the connection's read deadline.
type tickerStream struct {
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}

	mu      sync.Mutex
	readErr error
	once    sync.Once
}

func (s *tickerStream) readPump() {
	defer close(s.frames)
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			s.readErr = err
			s.mu.Unlock()
			return
		}
		select {
		case s.frames <- msg:
		case <-s.done:
			return
		}
	}
}

func (s *tickerStream) Recv(ctx context.Context, timeout time.Duration) (domain.TickerEvent, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return domain.TickerEvent{}, ctx.Err()
	case <-s.done:
		return domain.TickerEvent{}, domain.ErrStreamClosed
	case <-timer.C:
		return domain.TickerEvent{}, domain.ErrRecvTimeout
	case msg, ok := <-s.frames:
		if !ok {
			return domain.TickerEvent{}, s.failure()
		}
		return decodeTickerFrame(msg)
	}
}

func (s *tickerStream) failure() error {
	select {
	case <-s.done:
		return domain.ErrStreamClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr == nil {
		return domain.ErrStreamClosed
	}
	return fmt.Errorf("read stream: %w", s.readErr)
}

func (s *tickerStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
		err = s.conn.Close()
	})
	return err
}

// combinedFrame is the envelope of a combined stream message.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// wsTicker is the 24hr ticker payload. Upper-case keys are declared so the
// case-insensitive decoder does not map "E", "C" or "Q" onto the fields we
// actually read.
type wsTicker struct {
	EventType   string `json:"e"`
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	LastPrice   string `json:"c"`
	CloseTime   int64  `json:"C"`
	QuoteVolume string `json:"q"`
	LastQty     string `json:"Q"`
}

func decodeTickerFrame(msg []byte) (domain.TickerEvent, error) {
	var frame combinedFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return domain.TickerEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	data := frame.Data
	if len(data) == 0 || data[0] != '{' {
		return domain.TickerEvent{}, fmt.Errorf("%w: no data in frame", domain.ErrMalformedMessage)
	}
	var t wsTicker
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.TickerEvent{}, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	return domain.TickerEvent{
		EventType:   t.EventType,
		Symbol:      t.Symbol,
		LastPrice:   t.LastPrice,
		QuoteVolume: t.QuoteVolume,
	}, nil
}
