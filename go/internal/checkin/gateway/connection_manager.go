package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
)

// CommandHandler runs commands received from a user's connection
type CommandHandler interface {
	HandleCommand(ctx context.Context, username string, env *events.Envelope)
}

// ConnectionManager manages WebSocket connections for check-in events
type ConnectionManager struct {
	// Connection pools organized by username
	userConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	commands CommandHandler

	// Event broadcasting. A single consumer keeps per-user delivery in send order.
	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client
type Connection struct {
	ID       string
	Username string
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	PingInterval    time.Duration `yaml:"ping_interval"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
	MaxMessageSize  int64         `yaml:"max_message_size"`
	ReadBufferSize  int           `yaml:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size"`
	SendBufferSize  int           `yaml:"send_buffer_size"`

	CheckOrigin func(r *http.Request) bool `yaml:"-"`
}

// BroadcastMessage represents a message to deliver to every connection of a user
type BroadcastMessage struct {
	Username string
	Event    *events.Envelope
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  10 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			// Mobile clients send no Origin; tokens gate access
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, commands CommandHandler) *ConnectionManager {
	return &ConnectionManager{
		userConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		commands:    commands,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// SetCommandHandler sets the handler for commands received on any connection
func (cm *ConnectionManager) SetCommandHandler(commands CommandHandler) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.commands = commands
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, username string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Username:    username,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("username", username).
		Msg("WebSocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.userConnections[conn.Username] == nil {
		cm.userConnections[conn.Username] = make(map[*Connection]bool)
	}
	cm.userConnections[conn.Username][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("username", conn.Username).
		Int("user_connections", len(cm.userConnections[conn.Username])).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	connections, exists := cm.userConnections[conn.Username]
	if !exists {
		return
	}
	if _, exists := connections[conn]; !exists {
		return
	}

	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.userConnections, conn.Username)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("username", conn.Username).
		Msg("connection unregistered")
}

// PublishToUser queues an event for every connection of username
func (cm *ConnectionManager) PublishToUser(username string, event *events.Envelope) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Username: username, Event: event}:
	default:
		log.Warn().
			Str("username", username).
			Str("event_type", string(event.Type)).
			Msg("broadcast channel full, dropping message")
	}
}

// IsOnline reports whether username has at least one open connection
func (cm *ConnectionManager) IsOnline(username string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.userConnections[username]) > 0
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	eventData, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	// Sends are non-blocking; holding the read lock keeps Send channels open
	cm.mu.RLock()
	connections, exists := cm.userConnections[message.Username]
	if !exists {
		cm.mu.RUnlock()
		log.Debug().
			Str("username", message.Username).
			Str("event_type", string(message.Event.Type)).
			Msg("user offline, event not delivered")
		return
	}

	var slow []*Connection
	for conn := range connections {
		select {
		case conn.Send <- eventData:
		default:
			slow = append(slow, conn)
		}
	}
	delivered := len(connections) - len(slow)
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("username", conn.Username).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("username", message.Username).
		Int("connections", delivered).
		Msg("event delivered")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.userConnections {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// ConnectionStats summarizes open connections
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	OnlineUsers      int            `json:"online_users"`
	UserConnections  map[string]int `json:"user_connections"`
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{UserConnections: make(map[string]int)}
	for username, connections := range cm.userConnections {
		stats.TotalConnections += len(connections)
		stats.UserConnections[username] = len(connections)
	}
	stats.OnlineUsers = len(cm.userConnections)
	return stats
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage decodes a command frame and hands it to the command handler.
// Commands from one connection run in arrival order.
func (c *Connection) handleClientMessage(message []byte) {
	env, err := events.Decode(message)
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("username", c.Username).
			Msg("dropping malformed client message")
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("username", c.Username).
		Str("command", string(env.Type)).
		Msg("received client command")

	c.Manager.mu.RLock()
	commands := c.Manager.commands
	c.Manager.mu.RUnlock()
	if commands == nil {
		log.Warn().Str("command", string(env.Type)).Msg("no command handler registered")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.CommandTimeout)
	defer cancel()
	commands.HandleCommand(ctx, c.Username, env)
}
