// Package sessions implements the per-conversation session store (C3):
// session identity keyed by (surface, conversation_key), durable history
// persistence, and auto-restore by scanning the sessions directory for the
// newest matching document.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/itismyfield/cokacdir/internal/agentproc"
	"github.com/itismyfield/cokacdir/internal/paths"
	"github.com/itismyfield/cokacdir/internal/settings"
)

// HistoryKind is the kind tag of a HistoryItem.
type HistoryKind string

const (
	User       HistoryKind = "User"
	Assistant  HistoryKind = "Assistant"
	Error      HistoryKind = "Error"
	System     HistoryKind = "System"
	ToolUse    HistoryKind = "ToolUse"
	ToolResult HistoryKind = "ToolResult"
)

// HistoryItem is one (kind, content) entry. Only non-System items are
// persisted.
type HistoryItem struct {
	Kind    HistoryKind `json:"kind"`
	Content string      `json:"content"`
}

// Session is one (surface, conversation_key)'s in-memory conversation
// state.
type Session struct {
	AgentSessionID   string
	WorkingDirectory string
	History          []HistoryItem
	PendingUploads   []string
	Cleared          bool

	cancel *agentproc.CancelToken
}

// document is the on-disk shape of a persisted session file.
type document struct {
	SessionID   string        `json:"session_id"`
	CurrentPath string        `json:"current_path"`
	CreatedAt   time.Time     `json:"created_at"`
	History     []HistoryItem `json:"history"`
}

// Key identifies a session by surface and conversation key, e.g.
// ("discord", "channel:123") or ("telegram", "chat:456").
type Key struct {
	Surface         string
	ConversationKey string
}

func (k Key) settingsKey() string {
	return k.Surface + ":" + k.ConversationKey
}

// Store holds in-memory sessions and persists/restores them to the
// well-known sessions directory.
type Store struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	dir      string
	settings *settings.Store
	credKey  string
	credTok  string
}

// New creates a Store backed by the well-known sessions directory. settings
// is consulted for auto-restore's last_sessions lookup, keyed under
// credKey/credTok.
func New(st *settings.Store, credKey, credTok string) *Store {
	return &Store{
		sessions: make(map[Key]*Session),
		dir:      paths.SessionsDir(),
		settings: st,
		credKey:  credKey,
		credTok:  credTok,
	}
}

// NewAt is New with an explicit sessions directory, for tests.
func NewAt(dir string, st *settings.Store, credKey, credTok string) *Store {
	return &Store{
		sessions: make(map[Key]*Session),
		dir:      dir,
		settings: st,
		credKey:  credKey,
		credTok:  credTok,
	}
}

// GetOrCreate returns the in-memory session for key, auto-restoring it from
// disk on first access if one isn't already held.
func (s *Store) GetOrCreate(key Key) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[key]; ok {
		return sess
	}

	sess := s.restore(key)
	s.sessions[key] = sess
	return sess
}

// restore implements the auto-restore rule: consult last_sessions for a
// known working directory, then scan the sessions directory for the newest
// .json whose current_path matches. Caller must hold s.mu.
func (s *Store) restore(key Key) *Session {
	sess := &Session{}

	if s.settings == nil {
		return sess
	}

	dir, ok := s.settings.LastSession(s.credKey, s.credTok, key.settingsKey())
	if !ok {
		return sess
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return &Session{WorkingDirectory: dir}
	}

	sess.WorkingDirectory = dir

	doc, found := s.newestMatching(dir)
	if !found {
		return sess
	}

	sess.AgentSessionID = doc.SessionID
	sess.History = doc.History
	return sess
}

// newestMatching scans the sessions directory for the .json document with
// the greatest mtime whose current_path equals dir.
func (s *Store) newestMatching(dir string) (document, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return document{}, false
	}

	var best document
	var bestMod time.Time
	found := false

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var doc document
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		if doc.CurrentPath != dir {
			continue
		}
		if !found || info.ModTime().After(bestMod) {
			best = doc
			bestMod = info.ModTime()
			found = true
		}
	}
	return best, found
}

// SetPath updates the session's working directory and records it as the
// last-used directory for this conversation key.
func (s *Store) SetPath(key Key, path string) error {
	s.mu.Lock()
	sess := s.getOrCreateLocked(key)
	sess.WorkingDirectory = path
	s.mu.Unlock()

	if s.settings != nil {
		return s.settings.SetLastSession(s.credKey, s.credTok, key.settingsKey(), path)
	}
	return nil
}

// Clear resets a session's agent_session_id, history, and marks it cleared
// so the in-flight exchange isn't persisted.
func (s *Store) Clear(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(key)
	sess.AgentSessionID = ""
	sess.History = nil
	sess.Cleared = true
}

// AttachCancel records the in-flight request's cancel token. Returns false
// if a token is already attached (request already in progress).
func (s *Store) AttachCancel(key Key, token *agentproc.CancelToken) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(key)
	if sess.cancel != nil {
		return false
	}
	sess.cancel = token
	return true
}

// DetachCancel removes the in-flight cancel token.
func (s *Store) DetachCancel(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(key)
	sess.cancel = nil
}

// InProgress reports whether a request is currently in flight for key.
func (s *Store) InProgress(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	return ok && sess.cancel != nil
}

// CancelToken returns the in-flight cancel token for key, if any.
func (s *Store) CancelToken(key Key) (*agentproc.CancelToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok || sess.cancel == nil {
		return nil, false
	}
	return sess.cancel, true
}

// Append adds a history item to the session, submitted before Persist is
// called at the end of an exchange.
func (s *Store) Append(key Key, item HistoryItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(key)
	sess.History = append(sess.History, item)
}

// SetAgentSessionID records the agent-minted session id; the surfaces call
// it with the id the bridge reports at the end of a request.
func (s *Store) SetAgentSessionID(key Key, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(key)
	sess.AgentSessionID = id
}

// ResetCleared clears the cleared flag; called when the next prompt is
// submitted.
func (s *Store) ResetCleared(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(key)
	sess.Cleared = false
}

// DrainPendingUploads returns and clears the buffered upload notes.
func (s *Store) DrainPendingUploads(key Key) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(key)
	notes := sess.PendingUploads
	sess.PendingUploads = nil
	return notes
}

// AddPendingUpload appends a note describing an out-of-band upload and
// records a User-kind history item for it.
func (s *Store) AddPendingUpload(key Key, note string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.getOrCreateLocked(key)
	sess.PendingUploads = append(sess.PendingUploads, note)
	sess.History = append(sess.History, HistoryItem{Kind: User, Content: note})
}

func (s *Store) getOrCreateLocked(key Key) *Session {
	sess, ok := s.sessions[key]
	if !ok {
		sess = s.restore(key)
		s.sessions[key] = sess
	}
	return sess
}

// Persist writes the session document to disk, applying the persistence
// policy: skip when cleared, agent_session_id unset, or history empty;
// filter out System-kind items; guard the write path against traversal.
func (s *Store) Persist(key Key) error {
	s.mu.Lock()
	sess, ok := s.sessions[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if sess.Cleared || sess.AgentSessionID == "" || len(sess.History) == 0 {
		s.mu.Unlock()
		return nil
	}

	persisted := make([]HistoryItem, 0, len(sess.History))
	for _, item := range sess.History {
		if item.Kind != System {
			persisted = append(persisted, item)
		}
	}

	doc := document{
		SessionID:   sess.AgentSessionID,
		CurrentPath: sess.WorkingDirectory,
		CreatedAt:   time.Now(),
		History:     persisted,
	}
	s.mu.Unlock()

	if err := paths.EnsureDir(s.dir); err != nil {
		return fmt.Errorf("ensure sessions dir: %w", err)
	}

	target := filepath.Join(s.dir, doc.SessionID+".json")
	if filepath.Dir(target) != s.dir {
		return fmt.Errorf("refusing to persist outside sessions dir: %s", target)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session document: %w", err)
	}
	return os.WriteFile(target, data, 0o644)
}
