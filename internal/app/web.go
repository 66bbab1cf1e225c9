package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/serial_imu/internal/config"
	"github.com/relabs-tech/serial_imu/internal/mqtt"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// wsMessage is what /ws clients receive for every reading.
type wsMessage struct {
	Type string          `json:"type"` // "imu" or "mag"
	Data json.RawMessage `json:"data"`
}

// liveState keeps the latest payload per kind and fans every update out
// to the connected WebSocket clients.
type liveState struct {
	mu      sync.RWMutex
	latest  map[string]json.RawMessage
	clients map[chan wsMessage]struct{}
	logger  *slog.Logger
}

func newLiveState(logger *slog.Logger) *liveState {
	return &liveState{
		latest:  make(map[string]json.RawMessage),
		clients: make(map[chan wsMessage]struct{}),
		logger:  logger,
	}
}

// update stores payload as the latest of its kind. Payloads that are not
// valid JSON are dropped.
func (s *liveState) update(kind string, payload []byte) {
	if !json.Valid(payload) {
		s.logger.Warn("web: dropping invalid payload", "type", kind)
		return
	}
	msg := wsMessage{Type: kind, Data: append(json.RawMessage(nil), payload...)}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[kind] = msg.Data
	for ch := range s.clients {
		select {
		case ch <- msg:
		default:
			// slow client: skip this reading
		}
	}
}

func (s *liveState) get(kind string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.latest[kind]
	return v, ok
}

func (s *liveState) subscribe() chan wsMessage {
	ch := make(chan wsMessage, 64)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

func (s *liveState) unsubscribe(ch chan wsMessage) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

func (s *liveState) latestHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := s.get(kind)
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(v); err != nil {
			s.logger.Warn("web: write error", "err", err)
		}
	}
}

func (s *liveState) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("web: websocket upgrade error", "err", err)
		return
	}
	defer conn.Close()

	ch := s.subscribe()
	defer s.unsubscribe(ch)

	// Reader goroutine only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("web: websocket write error", "err", err)
				return
			}
		}
	}
}

func (s *liveState) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/imu", s.latestHandler("imu"))
	mux.HandleFunc("GET /api/mag", s.latestHandler("mag"))
	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/", http.FileServer(http.Dir("web")))
	return mux
}

// RunWeb subscribes to the reading topics and serves them over HTTP:
// the latest reading as JSON and a live WebSocket stream.
func RunWeb(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireBroker(); err != nil {
		return err
	}

	state := newLiveState(logger)

	client := mqtt.NewClient(cfg.MQTTBroker, cfg.MQTTClientIDWeb, logger)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	if err := client.Subscribe(cfg.TopicIMU, cfg.MQTTQoS, func(_ string, p []byte) { state.update("imu", p) }); err != nil {
		return err
	}
	if err := client.Subscribe(cfg.TopicMag, cfg.MQTTQoS, func(_ string, p []byte) { state.update("mag", p) }); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           state.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("web server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
