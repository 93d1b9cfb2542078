// Package dashboard implements the dashboard service (C9): a local HTTP
// server that serves a static web bundle at "/" and a WebSocket at "/ws",
// polling the sessions directory every 2 seconds to diff the agent set and
// broadcast create/close events, while also exposing a Publish API the
// surface adapters call in-process for live status and statusline updates.
// Grounded on the teacher's rest-of-pack websocket pattern
// (wingedpig-trellis/internal/api/handlers/events.go: upgrader, read-pump
// for close detection, write-pump select loop, ping ticker) adapted from a
// pub/sub event bus to a polling diff loop per spec §4.9.
package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/itismyfield/cokacdir/internal/paths"
	"github.com/itismyfield/cokacdir/internal/settings"
)

const pollInterval = 2 * time.Second

// AgentSnapshot is one row of the {session_id -> AgentSnapshot} map the
// polling loop rebuilds on every cycle.
type AgentSnapshot struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	CurrentPath string `json:"currentPath"`
	CreatedAt   string `json:"createdAt"`
}

// message is the wire shape of every event: a "type" discriminator plus
// whatever fields that type carries, matching §6's tagged-by-type list
// (existingAgents, agentCreated, agentClosed, agentStatus, agentToolStart,
// agentToolDone, agentToolsClear, agentStatusline, layoutLoaded,
// settingsLoaded).
type message map[string]interface{}

type persistedDoc struct {
	SessionID   string `json:"session_id"`
	CurrentPath string `json:"current_path"`
	CreatedAt   string `json:"created_at"`
}

// Server is the dashboard's HTTP+WebSocket front. Global mutable state is
// deliberately avoided: the adapters in C8 hold a *Server reference and
// call PublishStatus directly, and the presenter reaches the tool and
// statusline publishers through its Hooks, rather than reaching through a
// process-wide handle (spec §9 Design Notes flags the source's use of
// globals here as something a reimplementation should not repeat).
type Server struct {
	dir      string
	settings *settings.Store
	webDir   string

	mu        sync.Mutex
	snapshots map[string]AgentSnapshot // keyed by session id
	ids       map[string]string        // session id -> dashboard agent id

	clientsMu sync.Mutex
	clients   map[*client]struct{}

	upgrader websocket.Upgrader

	// broadcastHook, if set, observes every outgoing message in addition to
	// (not instead of) delivery to connected clients. Used by tests that
	// want to assert on agentCreated/agentClosed without opening a socket.
	broadcastHook func(message)
}

// New wires a Server around the well-known sessions directory. webDir, if
// non-empty, is served as the static bundle at "/"; an empty webDir serves
// a placeholder page, since the dashboard front-end itself is an
// out-of-scope external collaborator (spec §1).
func New(settingsStore *settings.Store, webDir string) *Server {
	return NewAt(paths.SessionsDir(), settingsStore, webDir)
}

// NewAt is New with an explicit sessions directory, for tests.
func NewAt(dir string, settingsStore *settings.Store, webDir string) *Server {
	return &Server{
		dir:       dir,
		settings:  settingsStore,
		webDir:    webDir,
		snapshots: make(map[string]AgentSnapshot),
		ids:       make(map[string]string),
		clients:   make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// client is one connected WebSocket viewer; writes are serialized through
// a buffered channel so the poll loop and in-process publishers never
// block on a slow reader.
type client struct {
	conn *websocket.Conn
	send chan message
}

// Handler returns the mux this server answers on: "/" for the static
// bundle, "/ws" for the live feed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	if s.webDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.webDir)))
	} else {
		mux.HandleFunc("/", s.servePlaceholder)
	}
	return mux
}

func (s *Server) servePlaceholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<html><body><p>cokacdir dashboard: connect to /ws for live agent status.</p></body></html>"))
}

// Run starts the poll loop and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	go s.pollLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[DASHBOARD] listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rescan()
		}
	}
}

// rescan rebuilds the {session_id -> AgentSnapshot} map from the sessions
// directory, diffs it against the previous scan, and broadcasts
// agentCreated/agentClosed for the difference.
func (s *Server) rescan() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}

	fresh := make(map[string]AgentSnapshot, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var doc persistedDoc
		if err := json.Unmarshal(data, &doc); err != nil || doc.SessionID == "" {
			continue
		}
		fresh[doc.SessionID] = AgentSnapshot{
			SessionID:   doc.SessionID,
			CurrentPath: doc.CurrentPath,
			CreatedAt:   doc.CreatedAt,
		}
	}

	s.mu.Lock()
	var created, closed []AgentSnapshot
	for sessionID, snap := range fresh {
		id, known := s.ids[sessionID]
		if !known {
			id = uuid.NewString()
			s.ids[sessionID] = id
		}
		snap.ID = id
		s.snapshots[sessionID] = snap
		if !known {
			created = append(created, snap)
		}
	}
	for sessionID, snap := range s.snapshots {
		if _, stillThere := fresh[sessionID]; !stillThere {
			closed = append(closed, snap)
			delete(s.snapshots, sessionID)
			delete(s.ids, sessionID)
		}
	}
	s.mu.Unlock()

	for _, snap := range created {
		s.broadcast(message{"type": "agentCreated", "id": snap.ID, "sessionId": snap.SessionID, "currentPath": snap.CurrentPath})
	}
	for _, snap := range closed {
		s.broadcast(message{"type": "agentClosed", "id": snap.ID})
	}
}

// PublishStatus is called in-process by a surface adapter (C8) to report a
// live status change for the agent servicing sessionID.
func (s *Server) PublishStatus(sessionID, status string) {
	id, ok := s.agentID(sessionID)
	if !ok {
		return
	}
	s.broadcast(message{"type": "agentStatus", "id": id, "status": status})
}

// PublishStatusline reports cost/token telemetry for the agent servicing
// sessionID, mirroring the source's statusline event.
func (s *Server) PublishStatusline(sessionID string, costUSD float64, inputTokens, outputTokens int) {
	id, ok := s.agentID(sessionID)
	if !ok {
		return
	}
	s.broadcast(message{
		"type": "agentStatusline", "id": id,
		"costUsd": costUSD, "inputTokens": inputTokens, "outputTokens": outputTokens,
	})
}

// PublishToolStart/PublishToolDone/PublishToolsClear report per-tool
// execution events for the dashboard's activity feed.
func (s *Server) PublishToolStart(sessionID, toolName, summary string) {
	if id, ok := s.agentID(sessionID); ok {
		s.broadcast(message{"type": "agentToolStart", "id": id, "tool": toolName, "summary": summary})
	}
}

func (s *Server) PublishToolDone(sessionID, toolName string, isError bool) {
	if id, ok := s.agentID(sessionID); ok {
		s.broadcast(message{"type": "agentToolDone", "id": id, "tool": toolName, "isError": isError})
	}
}

func (s *Server) PublishToolsClear(sessionID string) {
	if id, ok := s.agentID(sessionID); ok {
		s.broadcast(message{"type": "agentToolsClear", "id": id})
	}
}

// Snapshots returns a copy of the current agent set, for tests and for
// callers that want the list without opening a WebSocket.
func (s *Server) Snapshots() []AgentSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AgentSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		out = append(out, snap)
	}
	return out
}

func (s *Server) agentID(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.ids[sessionID]
	return id, ok
}

func (s *Server) broadcast(msg message) {
	if s.broadcastHook != nil {
		s.broadcastHook(msg)
	}
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			// slow reader; drop rather than block the publisher.
		}
	}
}

// serveWS upgrades the connection and, per spec §4.9, sends settings, the
// current agent list, a stored default layout, then per-agent initial
// status, in that exact order — the frontend relies on agents arriving
// before layout, and layout triggering a flush.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[DASHBOARD] upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan message, 64)}
	s.clientsMu.Lock()
	s.clients[c] = struct{}{}
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c)
		s.clientsMu.Unlock()
		conn.Close()
	}()

	s.sendInitialState(c)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pingTicker := time.NewTicker(54 * time.Second)
	defer pingTicker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-pingTicker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (s *Server) sendInitialState(c *client) {
	if err := c.conn.WriteJSON(message{"type": "settingsLoaded", "settings": s.settingsSummary()}); err != nil {
		return
	}

	s.mu.Lock()
	agents := make([]AgentSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		agents = append(agents, snap)
	}
	s.mu.Unlock()

	if err := c.conn.WriteJSON(message{"type": "existingAgents", "agents": agents}); err != nil {
		return
	}
	if err := c.conn.WriteJSON(message{"type": "layoutLoaded", "layout": s.defaultLayout()}); err != nil {
		return
	}
	for _, snap := range agents {
		c.conn.WriteJSON(message{"type": "agentStatus", "id": snap.ID, "status": "idle"})
	}
}

// settingsSummary is the payload of the settingsLoaded event. It is an
// empty object: no field of the settings document (in particular no raw
// credential token) is sent to viewers.
func (s *Server) settingsSummary() message {
	return message{}
}

// defaultLayout is the stored default panel arrangement; this build has no
// persisted layout preference yet, so it reports the trivial single-column
// default and lets the frontend fill in from there.
func (s *Server) defaultLayout() message {
	return message{"columns": 1}
}
