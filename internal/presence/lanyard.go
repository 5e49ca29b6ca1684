// Package presence keeps a cached Discord presence snapshot for the
// profile page, fed by the Lanyard websocket gateway. The page only ever
// reads the latest snapshot; gateway hiccups degrade to "no presence",
// never to an error on the page.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultGatewayURL is the public Lanyard websocket endpoint.
	DefaultGatewayURL = "wss://api.lanyard.rest/socket"

	defaultReconnectWait = 5 * time.Second

	opcodeEvent      = 0
	opcodeHello      = 1
	opcodeInitialize = 2
	opcodeHeartbeat  = 3

	eventInitState      = "INIT_STATE"
	eventPresenceUpdate = "PRESENCE_UPDATE"
)

var errMissingUserID = errors.New("presence: discord user id is required")

type gatewayMessage struct {
	Op   int             `json:"op"`
	Type string          `json:"t,omitempty"`
	Data json.RawMessage `json:"d,omitempty"`
}

type helloData struct {
	HeartbeatIntervalMillis int64 `json:"heartbeat_interval"`
}

type initializeData struct {
	SubscribeToID string `json:"subscribe_to_id"`
}

// Config configures the Lanyard client.
type Config struct {
	// UserID is the Discord user whose presence is subscribed to.
	UserID string
	// GatewayURL overrides the Lanyard endpoint, mainly for tests.
	GatewayURL string
	// ReconnectWait is the pause between reconnect attempts.
	ReconnectWait time.Duration
	Dialer        *websocket.Dialer
	Logger        *zap.Logger
}

// Client maintains the gateway subscription and the latest snapshot.
type Client struct {
	userID        string
	gatewayURL    string
	reconnectWait time.Duration
	dialer        *websocket.Dialer
	logger        *zap.Logger

	mu       sync.RWMutex
	snapshot json.RawMessage
}

// NewClient validates the configuration and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.UserID == "" {
		return nil, errMissingUserID
	}
	gatewayURL := cfg.GatewayURL
	if gatewayURL == "" {
		gatewayURL = DefaultGatewayURL
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = defaultReconnectWait
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		userID:        cfg.UserID,
		gatewayURL:    gatewayURL,
		reconnectWait: reconnectWait,
		dialer:        dialer,
		logger:        logger,
	}, nil
}

// Snapshot returns the latest presence payload. The second return is
// false until the first gateway event has arrived.
func (c *Client) Snapshot() (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil, false
	}
	copied := make(json.RawMessage, len(c.snapshot))
	copy(copied, c.snapshot)
	return copied, true
}

// Run connects to the gateway and keeps the subscription alive until the
// context is cancelled, reconnecting after failures.
func (c *Client) Run(ctx context.Context) {
	for {
		if err := c.runConnection(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn("presence connection lost", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectWait):
		}
	}
}

func (c *Client) runConnection(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.gatewayURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the read loop when the context ends.
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	var writeMu sync.Mutex
	send := func(message gatewayMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(message)
	}

	hello, err := c.readMessage(conn)
	if err != nil {
		return err
	}
	if hello.Op != opcodeHello {
		return errors.New("presence: expected hello as first gateway message")
	}
	var helloPayload helloData
	if err := json.Unmarshal(hello.Data, &helloPayload); err != nil {
		return err
	}

	initData, err := json.Marshal(initializeData{SubscribeToID: c.userID})
	if err != nil {
		return err
	}
	if err := send(gatewayMessage{Op: opcodeInitialize, Data: initData}); err != nil {
		return err
	}

	heartbeatInterval := time.Duration(helloPayload.HeartbeatIntervalMillis) * time.Millisecond
	if heartbeatInterval > 0 {
		go func() {
			ticker := time.NewTicker(heartbeatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-connCtx.Done():
					return
				case <-ticker.C:
					if err := send(gatewayMessage{Op: opcodeHeartbeat}); err != nil {
						return
					}
				}
			}
		}()
	}

	for {
		message, err := c.readMessage(conn)
		if err != nil {
			return err
		}
		if message.Op != opcodeEvent {
			continue
		}
		switch message.Type {
		case eventInitState, eventPresenceUpdate:
			c.storeSnapshot(message.Data)
		}
	}
}

func (c *Client) readMessage(conn *websocket.Conn) (gatewayMessage, error) {
	var message gatewayMessage
	if err := conn.ReadJSON(&message); err != nil {
		return gatewayMessage{}, err
	}
	return message, nil
}

func (c *Client) storeSnapshot(data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = append(json.RawMessage(nil), data...)
}
