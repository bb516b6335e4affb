package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client is one socket. conn.WriteJSON is not safe for concurrent use, so
// every write goes through Send.
type Client struct {
	PlayerID string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewClient(playerID string, conn *websocket.Conn) *Client {
	return &Client{PlayerID: playerID, conn: conn}
}

func (c *Client) Send(msg ServerMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// ConnectionManager tracks the live socket of each player. A newer socket
// replaces and closes the older one.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{clients: make(map[string]*Client)}
}

func (cm *ConnectionManager) Add(c *Client) {
	cm.mu.Lock()
	old, exists := cm.clients[c.PlayerID]
	cm.clients[c.PlayerID] = c
	cm.mu.Unlock()

	if exists && old != c {
		old.Send(ServerMessage{Type: TypeError, Message: "Connected from another tab"})
		old.Close()
	}
}

// RemoveIfMatching drops c unless a newer socket already replaced it.
func (cm *ConnectionManager) RemoveIfMatching(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if current, exists := cm.clients[c.PlayerID]; exists && current == c {
		delete(cm.clients, c.PlayerID)
	}
}

func (cm *ConnectionManager) IsCurrent(c *Client) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.clients[c.PlayerID] == c
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// CloseAll closes every socket, used on shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.Lock()
	clients := cm.clients
	cm.clients = make(map[string]*Client)
	cm.mu.Unlock()

	for _, c := range clients {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.Close()
	}
}
