// Package pushchannel is the client side of the check-in WebSocket.
package pushchannel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
)

var (
	// ErrNotConnected is returned by Emit while no connection is open
	ErrNotConnected = errors.New("push channel not connected")
	// ErrSendBufferFull is returned by Emit when the writer has fallen behind
	ErrSendBufferFull = errors.New("push channel send buffer full")
)

// Handler receives everything that arrives on the channel
type Handler interface {
	HandleEvent(env *events.Envelope)
	HandleDisconnect()
	// HandleReconnect is called after every successful dial, the first included
	HandleReconnect()
}

// Config holds the connection settings
type Config struct {
	URL            string
	Token          string
	Dialer         *websocket.Dialer
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	PingInterval   time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBufferSize int
}

// DefaultConfig returns settings matching the gateway's defaults
func DefaultConfig(url, token string) Config {
	return Config{
		URL:            url,
		Token:          token,
		Dialer:         websocket.DefaultDialer,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		PingInterval:   30 * time.Second,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBufferSize: 64,
	}
}

// Client keeps a WebSocket open to the gateway, redialing with backoff
type Client struct {
	cfg       Config
	connected atomic.Bool

	mu   sync.Mutex
	send chan []byte
}

// New creates a client. Nothing is dialed until Run.
func New(cfg Config) *Client {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 64
	}
	return &Client{cfg: cfg}
}

// Connected reports whether a connection is currently open
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Emit queues a command for the open connection
func (c *Client) Emit(eventType events.EventType, payload any) error {
	env, err := events.NewEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Run dials, serves the connection and redials until ctx is cancelled.
// It returns ctx.Err().
func (c *Client) Run(ctx context.Context, handler Handler) error {
	backoff := c.cfg.InitialBackoff

	for {
		header := http.Header{}
		if c.cfg.Token != "" {
			header.Set("Authorization", "Bearer "+c.cfg.Token)
		}

		conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().
				Err(err).
				Str("url", c.cfg.URL).
				Dur("retry_in", backoff).
				Msg("push channel dial failed")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.cfg.MaxBackoff)
			continue
		}

		backoff = c.cfg.InitialBackoff
		log.Info().Str("url", c.cfg.URL).Msg("push channel connected")

		c.serve(ctx, conn, handler)
		handler.HandleDisconnect()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Str("url", c.cfg.URL).Msg("push channel disconnected, reconnecting")
	}
}

// serve runs one connection until it drops or ctx is cancelled
func (c *Client) serve(ctx context.Context, conn *websocket.Conn, handler Handler) {
	send := make(chan []byte, c.cfg.SendBufferSize)
	done := make(chan struct{})

	c.mu.Lock()
	c.send = send
	c.mu.Unlock()
	c.connected.Store(true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.writePump(conn, send, done)
	}()
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			conn.Close()
		case <-done:
		}
	}()

	handler.HandleReconnect()
	c.readPump(conn, handler)

	c.connected.Store(false)
	c.mu.Lock()
	c.send = nil
	c.mu.Unlock()
	close(done)
	conn.Close()
	wg.Wait()
}

func (c *Client) readPump(conn *websocket.Conn, handler Handler) {
	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("push channel read error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		env, err := events.Decode(message)
		if err != nil {
			log.Warn().Err(err).Msg("dropping malformed push channel frame")
			continue
		}
		handler.HandleEvent(env)
	}
}

func (c *Client) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Msg("push channel write failed")
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
