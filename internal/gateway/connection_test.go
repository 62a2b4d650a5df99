package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// upgradedConn dials a throwaway websocket server and hands back the
// server side of the socket.
func upgradedConn(t *testing.T) *websocket.Conn {
	t.Helper()

	ready := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- ws
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial(strings.Replace(srv.URL, "http", "ws", 1), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return <-ready
}

func TestSendAfterCloseDoesNotPanic(t *testing.T) {
	conn := NewConnection("alice", upgradedConn(t))
	conn.Start()
	conn.Close(websocket.CloseNormalClosure, "bye")

	// Store callbacks can still fire Send after the socket is torn
	// down. Every call must error; none may panic.
	for i := 0; i < 300; i++ {
		if err := conn.Send([]byte("late")); err == nil {
			t.Fatal("expected send on a closed connection to fail")
		}
	}
}

func TestConcurrentSendAndClose(t *testing.T) {
	conn := NewConnection("alice", upgradedConn(t))
	conn.Start()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = conn.Send([]byte("payload"))
			}
		}()
	}
	conn.Close(websocket.CloseGoingAway, "shutting down")
	wg.Wait()

	if err := conn.Send([]byte("after")); err == nil {
		t.Fatal("expected send after close to fail")
	}
}
