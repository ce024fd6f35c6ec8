package marketdata

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/dstav/lodestar/internal/events"
)

const (
	dialTimeout          = 30 * time.Second
	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// tick is one streamed price update
type tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// PriceStream maintains a websocket subscription to the provider's price
// feed and republishes ticks on the event bus. The stream is informational;
// the decision cycle always works from a full snapshot.
type PriceStream struct {
	url string
	bus *events.Bus
	log zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	stopChan chan struct{}
	stopped  bool
}

// NewPriceStream creates a new price stream client
func NewPriceStream(url string, bus *events.Bus, log zerolog.Logger) *PriceStream {
	return &PriceStream{
		url:      url,
		bus:      bus,
		log:      log.With().Str("service", "price_stream").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start connects and begins the read loop. A failed initial connection is
// retried in the background.
func (ps *PriceStream) Start() error {
	ps.log.Info().Str("url", ps.url).Msg("Starting price stream")

	if err := ps.connect(); err != nil {
		ps.log.Warn().Err(err).Msg("Initial stream connection failed, retrying in background")
		go ps.reconnectLoop()
		return err
	}

	go ps.readLoop()
	return nil
}

// Stop closes the connection and halts reconnection
func (ps *PriceStream) Stop() {
	ps.mu.Lock()
	if ps.stopped {
		ps.mu.Unlock()
		return
	}
	ps.stopped = true
	close(ps.stopChan)
	conn := ps.conn
	ps.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	ps.log.Info().Msg("Price stream stopped")
}

func (ps *PriceStream) connect() error {
	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, ps.url, nil)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	ps.conn = conn
	ps.mu.Unlock()

	ps.log.Info().Msg("Price stream connected")
	return nil
}

func (ps *PriceStream) readLoop() {
	for {
		ps.mu.Lock()
		conn := ps.conn
		ps.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(context.Background())
		if err != nil {
			select {
			case <-ps.stopChan:
				return
			default:
			}
			ps.log.Warn().Err(err).Msg("Stream read failed, reconnecting")
			go ps.reconnectLoop()
			return
		}

		var t tick
		if err := json.Unmarshal(data, &t); err != nil {
			ps.log.Debug().Err(err).Msg("Discarding malformed tick")
			continue
		}
		if t.Symbol == "" || t.Price <= 0 {
			continue
		}

		ps.bus.Publish(events.PriceUpdated, "marketdata", &events.PriceUpdatedData{
			Symbol: t.Symbol,
			Price:  t.Price,
		})
	}
}

// reconnectLoop retries the connection with exponential backoff
func (ps *PriceStream) reconnectLoop() {
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		delay := time.Duration(float64(baseReconnectDelay) * math.Pow(2, float64(attempt)))
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}

		select {
		case <-ps.stopChan:
			return
		case <-time.After(delay):
		}

		ps.log.Info().Int("attempt", attempt+1).Msg("Reconnecting price stream")
		if err := ps.connect(); err != nil {
			ps.log.Warn().Err(err).Msg("Reconnect failed")
			continue
		}

		go ps.readLoop()
		return
	}
	ps.log.Error().Msg("Giving up on price stream after repeated failures")
}
