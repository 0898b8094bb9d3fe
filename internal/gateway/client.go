package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/wayfarer/internal/logging"
)

// writeWait bounds a single frame write.
const writeWait = 10 * time.Second

// Client is an authenticated WebSocket connection. Its context is cancelled
// when the connection closes, which aborts any turn it started.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	AuthResult  AuthResult
	ConnectedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	turns  sync.WaitGroup

	mu     sync.Mutex
	closed bool
	log    *logging.Logger
}

// NewClient wraps a newly authenticated connection. parent bounds the
// client's context.
func NewClient(parent context.Context, conn *websocket.Conn, info ClientInfo, auth AuthResult, log *logging.Logger) *Client {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()
	return &Client{
		ConnID:      id,
		Info:        info,
		Socket:      conn,
		AuthResult:  auth,
		ConnectedAt: time.Now(),
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With("connId", id),
	}
}

// Context is cancelled when the client disconnects.
func (c *Client) Context() context.Context { return c.ctx }

// Send writes a frame. It is safe for concurrent use.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	_ = c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Socket.WriteJSON(frame)
}

// SendEvent sends a named event.
func (c *Client) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// Respond sends a success response for a request.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for a request.
func (c *Client) RespondError(reqID string, e ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, e))
}

// ReadFrame reads the next frame.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Go runs fn as a turn owned by this client. Close waits for it.
func (c *Client) Go(fn func(ctx context.Context)) {
	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		fn(c.ctx)
	}()
}

// Close cancels running turns, waits for them to finish and closes the
// socket.
func (c *Client) Close() error {
	c.cancel()
	c.turns.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// ClientRegistry tracks connected clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client), log: log}
}

// Add registers a client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

// Remove unregisters a client.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := make([]*Client, 0, len(r.clients))
	for id, c := range r.clients {
		clients = append(clients, c)
		delete(r.clients, id)
	}
	r.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}
