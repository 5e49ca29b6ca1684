package presence

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestNewClientRequiresUserID(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}

func TestSnapshotIsEmptyBeforeFirstEvent(t *testing.T) {
	client, err := NewClient(Config{UserID: "94490510688792576"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := client.Snapshot(); ok {
		t.Fatalf("expected no snapshot before connecting")
	}
}

func TestClientSubscribesAndCachesPresenceEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(map[string]any{
			"op": opcodeHello,
			"d":  map[string]any{"heartbeat_interval": 30000},
		}); err != nil {
			t.Errorf("hello write failed: %v", err)
			return
		}

		var init gatewayMessage
		if err := conn.ReadJSON(&init); err != nil {
			t.Errorf("init read failed: %v", err)
			return
		}
		if init.Op != opcodeInitialize {
			t.Errorf("expected initialize opcode, got %d", init.Op)
			return
		}
		var initPayload initializeData
		if err := json.Unmarshal(init.Data, &initPayload); err != nil {
			t.Errorf("init payload decode failed: %v", err)
			return
		}
		received <- initPayload.SubscribeToID

		if err := conn.WriteJSON(map[string]any{
			"op": opcodeEvent,
			"t":  eventInitState,
			"d":  map[string]any{"discord_status": "online"},
		}); err != nil {
			t.Errorf("event write failed: %v", err)
			return
		}

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	gatewayURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := NewClient(Config{
		UserID:        "94490510688792576",
		GatewayURL:    gatewayURL,
		ReconnectWait: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	select {
	case subscribed := <-received:
		if subscribed != "94490510688792576" {
			t.Fatalf("subscribed to wrong user id %q", subscribed)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("gateway never received the subscription")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if snapshot, ok := client.Snapshot(); ok {
			var state map[string]any
			if err := json.Unmarshal(snapshot, &state); err != nil {
				t.Fatalf("invalid snapshot: %v", err)
			}
			if state["discord_status"] != "online" {
				t.Fatalf("unexpected snapshot %v", state)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("snapshot never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
