// Package api is the optional observability surface: a websocket stream of
// engine events plus health and metrics endpoints. The engine itself has no
// network dependency; this server is a read-only observer on the event bus.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"filecron/internal/event"
	"filecron/internal/logging"
	"filecron/internal/metrics"

	"github.com/gorilla/websocket"
)

const writeDeadline = 10 * time.Second

type Server struct {
	Addr    string
	Bus     *event.Bus[event.Event]
	Metrics *metrics.Registry
	Logger  *logging.Logger
}

type eventPayload struct {
	Type        string    `json:"type"`
	RulePath    string    `json:"rule_path,omitempty"`
	Path        string    `json:"path,omitempty"`
	Command     string    `json:"command,omitempty"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
	PID         int       `json:"pid,omitempty"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Handler builds the route table.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", server.handleHealth)
	mux.HandleFunc("/metrics", server.handleMetrics)
	mux.HandleFunc("/events", server.handleEvents)
	return mux
}

// ListenAndServe runs the server until the context is cancelled.
func (server *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if server.Logger != nil {
		server.Logger.Info("api listening", map[string]string{
			"filecron.category": "api",
			"addr":              server.Addr,
		})
	}
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (server *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (server *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	registry := server.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	_ = registry.WriteText(w)
}

func (server *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if server.Bus == nil {
		http.Error(w, "events unavailable", http.StatusInternalServerError)
		return
	}
	output, cancel := server.Bus.Subscribe()
	defer cancel()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case published, ok := <-output:
				if !ok {
					return
				}
				payload := payloadFor(published)
				if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
					return
				}
				if err := conn.WriteJSON(payload); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func payloadFor(published event.Event) eventPayload {
	payload := eventPayload{
		Type:      published.Type(),
		Timestamp: published.Timestamp(),
	}
	switch typed := published.(type) {
	case event.CommandEvent:
		payload.RulePath = typed.RulePath
		payload.Command = typed.Command
		payload.TriggeredBy = typed.TriggeredBy
		payload.PID = typed.PID
		if typed.EventType == event.TypeCommandFinished {
			exit := typed.ExitCode
			payload.ExitCode = &exit
		}
		payload.Message = typed.Message
	case event.WatchEvent:
		payload.Path = typed.Path
		payload.Message = typed.Message
	case event.TrackerEvent:
		payload.RulePath = typed.RulePath
		payload.Path = typed.Path
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now().UTC()
	}
	return payload
}
