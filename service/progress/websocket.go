package progress

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/khaledhikmat/vs-render/service/lgr"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

type websocketService struct {
	upgrader websocket.Upgrader
	runID    string

	mu       sync.Mutex
	clients  map[*websocket.Conn]*sync.Mutex
	latest   Snapshot
	finished bool

	updates chan Snapshot
	done    chan struct{}
	stop    sync.Once
	server  *http.Server
}

// NewWebsocket serves progress snapshots to websocket clients on addr (/ws).
// The listener is bound before returning so address errors surface at start.
func NewWebsocket(canxCtx context.Context, addr, runID string) (IService, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	svc := newWebsocketService(runID)
	svc.server = &http.Server{
		Handler:           svc.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := svc.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			lgr.Logger.Error("progress server stopped", slog.Any("error", err))
		}
	}()

	go func() {
		select {
		case <-canxCtx.Done():
		case <-svc.done:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.server.Shutdown(shutdownCtx)
	}()

	lgr.Logger.Info("progress websocket listening", slog.String("addr", ln.Addr().String()))
	return svc, nil
}

func newWebsocketService(runID string) *websocketService {
	svc := &websocketService{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		runID:   runID,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		latest:  Snapshot{Type: "progress", RunID: runID},
		updates: make(chan Snapshot, 16),
		done:    make(chan struct{}),
	}
	go svc.broadcast()
	return svc
}

func (svc *websocketService) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", svc.handleWS)
	mux.HandleFunc("/healthz", svc.handleHealth)
	return mux
}

func (svc *websocketService) Report(done, total int) {
	s := Snapshot{Type: "progress", RunID: svc.runID, Done: done, Total: total}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.finished {
		return
	}
	svc.latest = s

	// Clients only need the newest snapshot; drop when the queue is full.
	select {
	case svc.updates <- s:
	default:
	}
}

func (svc *websocketService) Finish() {
	svc.stop.Do(func() {
		svc.mu.Lock()
		svc.finished = true
		svc.latest.Finish = true
		final := svc.latest
		svc.mu.Unlock()

		// A stalled client may hold the broadcaster; the final snapshot
		// replaces the oldest queued one instead of waiting for it.
		for {
			select {
			case svc.updates <- final:
				close(svc.updates)
				return
			default:
			}
			select {
			case <-svc.updates:
			default:
			}
		}
	})
}

func (svc *websocketService) broadcast() {
	defer close(svc.done)

	for s := range svc.updates {
		svc.mu.Lock()
		clients := make(map[*websocket.Conn]*sync.Mutex, len(svc.clients))
		for c, m := range svc.clients {
			clients[c] = m
		}
		svc.mu.Unlock()

		for conn, writeMu := range clients {
			if err := writeJSON(conn, writeMu, s); err != nil {
				svc.removeClient(conn)
			}
		}
	}
}

func (svc *websocketService) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := svc.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	writeMu := &sync.Mutex{}
	svc.mu.Lock()
	svc.clients[conn] = writeMu
	latest := svc.latest
	svc.mu.Unlock()

	_ = writeJSON(conn, writeMu, latest)

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					writeMu.Lock()
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					err := conn.WriteMessage(websocket.PingMessage, nil)
					writeMu.Unlock()
					if err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer svc.removeClient(conn)

		// Clients do not send anything meaningful; reading keeps pongs flowing.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (svc *websocketService) handleHealth(w http.ResponseWriter, _ *http.Request) {
	svc.mu.Lock()
	latest := svc.latest
	svc.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(latest)
}

func (svc *websocketService) removeClient(conn *websocket.Conn) {
	svc.mu.Lock()
	delete(svc.clients, conn)
	svc.mu.Unlock()
	_ = conn.Close()
}

func writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, v any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
