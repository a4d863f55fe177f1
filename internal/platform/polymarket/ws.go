package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pingPeriod is how often the client pings the server.
	pingPeriod = 30 * time.Second

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// BookUpdateHandler is called when a full orderbook snapshot is received.
type BookUpdateHandler func(domain.OrderbookSnapshot)

// LastTradePriceHandler is called when a last trade price message is received.
type LastTradePriceHandler func(domain.LastTradePrice)

// WSClient streams the Polymarket CLOB market channel. Handlers run on the
// read goroutine and must not block.
type WSClient struct {
	wsURL  string
	dialer websocket.Dialer
	logger *slog.Logger

	handlerMu         sync.RWMutex
	bookHandlers      []BookUpdateHandler
	lastTradeHandlers []LastTradePriceHandler

	retryBase time.Duration
}

// NewWSClient creates a new WebSocket client for the given WebSocket URL.
//
// wsURL is the market channel endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market".
func NewWSClient(wsURL string, logger *slog.Logger) *WSClient {
	return &WSClient{
		wsURL:     wsURL,
		dialer:    websocket.Dialer{HandshakeTimeout: 15 * time.Second},
		logger:    logger.With(slog.String("component", "polymarket_ws")),
		retryBase: reconnectDelay,
	}
}

// OnBookUpdate registers a handler for every "book" event.
func (w *WSClient) OnBookUpdate(handler BookUpdateHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// OnLastTradePrice registers a handler for every "last_trade_price" event.
func (w *WSClient) OnLastTradePrice(handler LastTradePriceHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.lastTradeHandlers = append(w.lastTradeHandlers, handler)
}

// Run streams assetIDs until ctx is cancelled, reconnecting with exponential
// backoff after every disconnect.
func (w *WSClient) Run(ctx context.Context, assetIDs []string) error {
	delay := w.retryBase
	for {
		err := w.Stream(ctx, assetIDs)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.WarnContext(ctx, "polymarket ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// Stream holds one connection open until it fails or ctx is cancelled.
func (w *WSClient) Stream(ctx context.Context, assetIDs []string) error {
	conn, _, err := w.dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(messageType int, data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(messageType, data)
	}

	sub, err := json.Marshal(WSSubscribe{Type: "market", AssetIDs: assetIDs})
	if err != nil {
		return fmt.Errorf("polymarket/ws: marshal subscription: %w", err)
	}
	if err := write(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("polymarket/ws: subscribe: %w", err)
	}
	w.logger.InfoContext(ctx, "polymarket ws subscribed", slog.Int("assets", len(assetIDs)))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				_ = conn.Close()
				return
			case <-ticker.C:
				if err := write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("polymarket/ws: read: %w: %w", domain.ErrWSDisconnect, err)
		}
		w.handleMessage(message)
	}
}

// handleMessage routes a frame, which may hold a single event or an array.
func (w *WSClient) handleMessage(raw []byte) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(raw, &batch); err != nil {
			return
		}
		for _, ev := range batch {
			w.handleEvent(ev)
		}
		return
	}
	w.handleEvent(raw)
}

func (w *WSClient) handleEvent(raw []byte) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.EventType {
	case "book":
		var book APIBook
		if err := json.Unmarshal(raw, &book); err != nil {
			return
		}
		snap := book.ToDomainSnapshot(0)

		w.handlerMu.RLock()
		handlers := w.bookHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(snap)
		}

	case "last_trade_price":
		var lt APILastTrade
		if err := json.Unmarshal(raw, &lt); err != nil {
			return
		}
		price, err := strconv.ParseFloat(lt.Price, 64)
		if err != nil || price <= 0 {
			return
		}
		size, _ := strconv.ParseFloat(lt.Size, 64)
		trade := domain.LastTradePrice{
			AssetID:   lt.AssetID,
			Price:     price,
			Size:      size,
			Timestamp: parseTimestamp(lt.Timestamp),
		}

		w.handlerMu.RLock()
		handlers := w.lastTradeHandlers
		w.handlerMu.RUnlock()
		for _, h := range handlers {
			h(trade)
		}
	}
}
