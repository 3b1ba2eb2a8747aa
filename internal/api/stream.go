package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// AuditEvent describes websocket payloads emitted during audit runs.
type AuditEvent struct {
	Type       string         `json:"type"`
	JobID      string         `json:"job_id"`
	Total      int64          `json:"total,omitempty"`
	Processed  int            `json:"processed,omitempty"`
	Evaluation *EvaluationDTO `json:"evaluation,omitempty"`
	Message    string         `json:"message,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// AuditNotifier keeps track of active websocket clients and broadcasts
// audit progress events.
type AuditNotifier struct {
	mu         sync.Mutex
	clients    map[*wsClient]struct{}
	lastStatus *AuditEvent
}

// NewAuditNotifier constructs a notifier instance.
func NewAuditNotifier() *AuditNotifier {
	return &AuditNotifier{clients: make(map[*wsClient]struct{})}
}

// Register attaches a websocket connection and returns a client handle.
// New clients immediately receive the last status snapshot so they can
// render progress without waiting for the next event.
func (n *AuditNotifier) Register(conn *websocket.Conn) *wsClient {
	client := &wsClient{conn: conn}
	n.mu.Lock()
	n.clients[client] = struct{}{}
	status := n.lastStatus
	n.mu.Unlock()

	if status != nil {
		_ = client.writeJSON(*status)
	}
	return client
}

// Unregister removes the websocket client from the notifier and closes the
// socket.
func (n *AuditNotifier) Unregister(client *wsClient) {
	if client == nil {
		return
	}
	n.mu.Lock()
	delete(n.clients, client)
	n.mu.Unlock()
	_ = client.conn.Close()
}

// Broadcast sends the supplied event to all registered websocket clients.
func (n *AuditNotifier) Broadcast(event AuditEvent) {
	event.Timestamp = time.Now().UTC()

	n.mu.Lock()
	if event.Type == "progress" || event.Type == "started" {
		snapshot := event
		snapshot.Evaluation = nil
		n.lastStatus = &snapshot
	}

	for client := range n.clients {
		if err := client.writeJSON(event); err != nil {
			delete(n.clients, client)
			_ = client.conn.Close()
		}
	}
	n.mu.Unlock()
}

// LastStatus returns a copy of the most recent progress-class event.
func (n *AuditNotifier) LastStatus() *AuditEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.lastStatus == nil {
		return nil
	}
	snapshot := *n.lastStatus
	return &snapshot
}

func (c *wsClient) writeJSON(payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(payload)
}
