package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tiltlock/internal/contacts"
	"tiltlock/internal/gesture"
	"tiltlock/internal/session"
)

//go:embed assets/*
var embeddedAssets embed.FS

// Controller is the session surface exposed over HTTP. *session.Service
// implements it.
type Controller interface {
	SessionView
	Touch(ev gesture.TouchEvent)
	Pause() error
	Resume() error
}

// TouchMessage is a remote touch, sent over the websocket or POSTed to
// /api/touch. Coordinates are display pixels.
type TouchMessage struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (m TouchMessage) event(at time.Time) (gesture.TouchEvent, error) {
	kind, err := gesture.ParseTouchKind(m.Kind)
	if err != nil {
		return gesture.TouchEvent{}, err
	}
	return gesture.TouchEvent{Kind: kind, X: m.X, Y: m.Y, At: at}, nil
}

// contactList hands out one contact list per unlock, the way a fresh
// unlocked screen builds its list.
type contactList struct {
	n int

	mu   sync.Mutex
	id   uuid.UUID
	list []contacts.Contact
}

func (c *contactList) forUnlock(id uuid.UUID) []contacts.Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.list == nil || c.id != id {
		c.id = id
		c.list = contacts.CreateList(c.n)
	}
	return c.list
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 20 * time.Second
	sseKeepAlive = 15 * time.Second
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func Handler(status *Status, ctl Controller, stream *SnapshotBroadcaster, logs *LogBuffer, contactCount int) http.Handler {
	if status == nil {
		status = NewStatus(ctl)
	}
	mux := http.NewServeMux()

	assetsFS, err := fs.Sub(embeddedAssets, "assets")
	if err != nil {
		assetsFS = nil
	}
	people := &contactList{n: contactCount}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, http.StatusOK, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/contacts", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if ctl == nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		snap := ctl.Snapshot()
		if snap.Screen != session.Unlocked {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "locked"})
			return
		}
		var id uuid.UUID
		if snap.LastTransition != nil {
			id = snap.LastTransition.ID
		}
		writeJSON(w, http.StatusOK, struct {
			Contacts []contacts.Contact `json:"contacts"`
		}{people.forUnlock(id)})
	})

	mux.HandleFunc("/api/touch", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if ctl == nil {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		var msg TouchMessage
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&msg); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		ev, err := msg.event(time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctl.Touch(ev)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	sessionAction := func(action func() error) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if !allow(w, r, http.MethodPost) {
				return
			}
			if ctl == nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}
			if err := action(); err != nil {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		}
	}
	if ctl != nil {
		mux.HandleFunc("/api/session/pause", sessionAction(ctl.Pause))
		mux.HandleFunc("/api/session/resume", sessionAction(ctl.Resume))
	}

	if stream != nil {
		mux.HandleFunc("/api/stream", func(w http.ResponseWriter, r *http.Request) {
			if !allow(w, r, http.MethodGet) {
				return
			}
			serveSSE(w, r, stream)
		})
		mux.HandleFunc("/api/ws", func(w http.ResponseWriter, r *http.Request) {
			serveWS(w, r, ctl, stream)
		})
	}

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.Handle("/api/about", aboutHandler(status))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" && path.Dir(r.URL.Path) == "/api" {
			http.NotFound(w, r)
			return
		}

		if assetsFS != nil {
			if b, err := fs.ReadFile(assetsFS, "index.html"); err == nil {
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				_, _ = w.Write(b)
				return
			}
		}

		// Fallback minimal page.
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>tiltlock</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>tiltlock</h1><p>Web UI is unavailable. Use <a href=\"/api/status\">/api/status</a>.</p>")
		if snap.Session != nil {
			_, _ = fmt.Fprintf(w, "<pre>screen=%s\nangles=%s\nin_range=%t</pre>", snap.Session.Screen, snap.Session.Angles, snap.Session.InRange)
		}
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func serveSSE(w http.ResponseWriter, r *http.Request, stream *SnapshotBroadcaster) {
	fl, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// The server write timeout would otherwise cut the stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")

	id, ch := stream.Subscribe(4)
	defer stream.Unsubscribe(id)

	_, _ = fmt.Fprint(w, ": connected\n\n")
	fl.Flush()

	keep := time.NewTicker(sseKeepAlive)
	defer keep.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			b, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", b); err != nil {
				return
			}
			fl.Flush()
		case <-keep.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			fl.Flush()
		}
	}
}

// serveWS streams snapshots to the client and accepts touch messages from
// it. All writes happen on this goroutine.
func serveWS(w http.ResponseWriter, r *http.Request, ctl Controller, stream *SnapshotBroadcaster) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		return
	}
	defer conn.Close()

	id, ch := stream.Subscribe(4)
	defer stream.Unsubscribe(id)

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg TouchMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Printf("web: ws: bad message: %v", err)
				continue
			}
			ev, err := msg.event(time.Now())
			if err != nil {
				log.Printf("web: ws: %v", err)
				continue
			}
			if ctl != nil {
				ctl.Touch(ev)
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-readDone:
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
