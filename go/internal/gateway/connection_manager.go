package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gamenight/livescore/go/internal/models"
)

// Rooms is how handlers reach the transport: room membership plus the three
// delivery shapes the protocol uses. Every delivery goes through a single
// fan-out loop, so events broadcast to one room arrive in the order their
// triggering events were processed.
type Rooms interface {
	Join(connectionID string, gameID int64)
	Leave(connectionID string, gameID int64)
	SendToConnection(connectionID string, event ServerEvent)
	BroadcastToGame(gameID int64, event ServerEvent)
	BroadcastToGameExcept(gameID int64, exceptConnectionID string, event ServerEvent)
}

// Dispatcher consumes raw client messages and the synthetic session-ended
// event. Implemented by Handlers; declared here so the connection manager
// stays decoupled from handler wiring.
type Dispatcher interface {
	Dispatch(ctx context.Context, connectionID string, raw []byte)
	SessionEnded(ctx context.Context, connectionID string)
}

// ConnectionManager owns the WebSocket connections and their game-room
// subscriptions.
type ConnectionManager struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[int64]map[*Connection]bool

	upgrader   websocket.Upgrader
	config     ConnectionConfig
	dispatcher Dispatcher

	deliveryCh chan delivery
}

// Connection represents one WebSocket client.
type Connection struct {
	ID       string
	Identity models.Identity
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time
}

// ConnectionConfig holds transport tuning for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// delivery is one queued outgoing event. Exactly one of ConnectionID or
// GameID routing applies; ExceptConnectionID narrows a room broadcast.
type delivery struct {
	ConnectionID       string
	GameID             int64
	ExceptConnectionID string
	ToRoom             bool
	Event              ServerEvent
}

// DefaultConnectionConfig returns default WebSocket transport settings.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a connection manager. SetDispatcher must be
// called before the first connection is accepted.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		conns: make(map[string]*Connection),
		rooms: make(map[int64]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		deliveryCh: make(chan delivery, 1000),
	}
}

func (cm *ConnectionManager) SetDispatcher(d Dispatcher) {
	cm.dispatcher = d
}

// Start runs the fan-out loop until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case d := <-cm.deliveryCh:
			cm.handleDelivery(d)
		}
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection bound
// to the given identity and starts its pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, identity models.Identity) (*Connection, error) {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          identity.ConnectionID,
		Identity:    identity,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump(r.Context())

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", identity.UserID).
		Bool("is_admin", identity.IsAdmin).
		Msg("WebSocket connection established")

	return connection, nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conns[conn.ID] = conn
}

// unregisterConnection removes a connection from every room and closes its
// send channel. Safe to call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if _, ok := cm.conns[conn.ID]; !ok {
		return
	}
	delete(cm.conns, conn.ID)

	for gameID, members := range cm.rooms {
		if members[conn] {
			delete(members, conn)
			if len(members) == 0 {
				delete(cm.rooms, gameID)
			}
		}
	}
	close(conn.Send)

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.Identity.UserID).
		Msg("connection unregistered")
}

// Join subscribes a connection to a game room.
func (cm *ConnectionManager) Join(connectionID string, gameID int64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.conns[connectionID]
	if !ok {
		return
	}
	if cm.rooms[gameID] == nil {
		cm.rooms[gameID] = make(map[*Connection]bool)
	}
	cm.rooms[gameID][conn] = true

	log.Debug().
		Str("connection_id", connectionID).
		Int64("game_id", gameID).
		Int("room_size", len(cm.rooms[gameID])).
		Msg("joined game room")
}

// Leave unsubscribes a connection from a game room.
func (cm *ConnectionManager) Leave(connectionID string, gameID int64) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	conn, ok := cm.conns[connectionID]
	if !ok {
		return
	}
	if members, ok := cm.rooms[gameID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(cm.rooms, gameID)
		}
	}
}

// SendToConnection queues a sender-only reply.
func (cm *ConnectionManager) SendToConnection(connectionID string, event ServerEvent) {
	cm.enqueue(delivery{ConnectionID: connectionID, Event: event})
}

// BroadcastToGame queues an event for every room member.
func (cm *ConnectionManager) BroadcastToGame(gameID int64, event ServerEvent) {
	cm.enqueue(delivery{GameID: gameID, ToRoom: true, Event: event})
}

// BroadcastToGameExcept queues an event for every room member but one.
func (cm *ConnectionManager) BroadcastToGameExcept(gameID int64, exceptConnectionID string, event ServerEvent) {
	cm.enqueue(delivery{GameID: gameID, ToRoom: true, ExceptConnectionID: exceptConnectionID, Event: event})
}

func (cm *ConnectionManager) enqueue(d delivery) {
	select {
	case cm.deliveryCh <- d:
	default:
		log.Warn().
			Str("event_type", string(d.Event.Type)).
			Msg("delivery channel full, dropping event")
	}
}

func (cm *ConnectionManager) handleDelivery(d delivery) {
	payload, err := json.Marshal(d.Event)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(d.Event.Type)).Msg("failed to marshal event")
		return
	}

	// Send channels are closed only under the write lock, in
	// unregisterConnection. Sending while holding the read lock means a
	// concurrent disconnect can never close a channel mid-send.
	cm.mu.RLock()
	var targets []*Connection
	if d.ToRoom {
		for conn := range cm.rooms[d.GameID] {
			if d.ExceptConnectionID != "" && conn.ID == d.ExceptConnectionID {
				continue
			}
			targets = append(targets, conn)
		}
	} else if conn, ok := cm.conns[d.ConnectionID]; ok {
		targets = append(targets, conn)
	}

	var slow []*Connection
	for _, conn := range targets {
		select {
		case conn.Send <- payload:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		// Connection is slow or dead, drop it.
		log.Warn().
			Str("connection_id", conn.ID).
			Str("user_id", conn.Identity.UserID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(d.Event.Type)).
		Int("targets", len(targets)).
		Msg("event delivered")
}

// Stats reports active connection and room counts.
func (cm *ConnectionManager) Stats() map[string]any {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	gameCounts := make(map[string]int)
	for gameID, members := range cm.rooms {
		gameCounts[fmt.Sprintf("%d", gameID)] = len(members)
	}

	return map[string]any{
		"total_connections": len(cm.conns),
		"active_rooms":      len(cm.rooms),
		"room_connections":  gameCounts,
	}
}

// writePump sends queued messages and pings to the WebSocket connection.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
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
				return
			}
		}
	}
}

// readPump reads client messages and feeds them through the dispatch table.
// On exit it runs disconnect cleanup through the same table.
func (c *Connection) readPump(ctx context.Context) {
	defer func() {
		c.Manager.dispatcher.SessionEnded(ctx, c.ID)
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
			return
		}

		c.Manager.dispatcher.Dispatch(ctx, c.ID, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
