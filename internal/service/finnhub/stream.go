package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"Pivot/internal/domain/models"
	drepo "Pivot/internal/domain/repository"
	applogger "Pivot/pkg/logger"

	"github.com/gorilla/websocket"
)

const DefaultWebSocketURL = "wss://ws.finnhub.io"

// Stream implements a MarketStream backed by Finnhub WebSocket.
type Stream struct {
	apiKey         string
	websocketURL   string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	writeMu   sync.Mutex
	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
}

// NewStream creates a new Finnhub MarketStream.
func NewStream(apiKey, websocketURL string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *Stream {
	if websocketURL == "" {
		websocketURL = DefaultWebSocketURL
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Stream{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		l:              l,
	}
}

var _ drepo.MarketStream = (*Stream)(nil)

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.websocketURL, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("finnhub connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.l.Info("finnhub stream connected")
	return nil
}

// Subscribe subscribes to symbols.
func (s *Stream) Subscribe(ctx context.Context, symbols []string) error {
	return s.send("subscribe", symbols)
}

// Unsubscribe stops trade delivery for symbols.
func (s *Stream) Unsubscribe(ctx context.Context, symbols []string) error {
	return s.send("unsubscribe", symbols)
}

func (s *Stream) send(kind string, symbols []string) error {
	conn := s.current()
	if conn == nil {
		return fmt.Errorf("finnhub not connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, sym := range symbols {
		msg := map[string]string{"type": kind, "symbol": sym}
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("%s %s: %w", kind, sym, err)
		}
		s.l.Debug("finnhub stream "+kind, applogger.String("symbol", sym))
	}
	return nil
}

type fhTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"` // ms
}

type fhMessage struct {
	Type string    `json:"type"`
	Data []fhTrade `json:"data"`
}

// Read streams Trade events and errors.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)
	conn := s.current()

	// ping loop
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if conn == nil {
					return
				}
				s.writeMu.Lock()
				err := conn.WriteMessage(websocket.PingMessage, nil)
				s.writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(trades)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("finnhub conn nil")
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			_, b, err := conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("finnhub read: %w", err)
				return
			}
			trs, ok := decodeTrades(b)
			if !ok {
				continue
			}
			for _, t := range trs {
				select {
				case trades <- t:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return trades, errs
}

// decodeTrades parses a trade frame. Pings and other frame types report ok=false.
func decodeTrades(b []byte) ([]*models.Trade, bool) {
	var m fhMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false
	}
	if m.Type != "trade" {
		return nil, false
	}
	out := make([]*models.Trade, 0, len(m.Data))
	for _, d := range m.Data {
		out = append(out, &models.Trade{Symbol: d.S, Timestamp: d.T / 1000, Price: d.P, Volume: d.V})
	}
	return out, true
}

// Reconnect closes, waits reconnectDelay, reconnects and resubscribes.
func (s *Stream) Reconnect(ctx context.Context, symbols []string) error {
	_ = s.Close()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx, symbols)
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Stream) current() *websocket.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}
