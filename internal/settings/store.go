// Package settings implements the single on-disk settings document (C1):
// a JSON file keyed by bot-credential hash, holding owner identity, the
// tool allowlist, and the last session per conversation.
package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/itismyfield/cokacdir/internal/paths"
	"github.com/itismyfield/cokacdir/internal/tools"
)

// Entry is one bot credential's settings.
type Entry struct {
	Token          string            `json:"token"`
	AllowedTools   []string          `json:"allowed_tools"`
	LastSessions   map[string]string `json:"last_sessions"`
	OwnerUserID    string            `json:"owner_user_id,omitempty"`
	AllowedUserIDs []string          `json:"allowed_user_ids,omitempty"`
}

// document is the on-disk shape: credential hash -> Entry.
type document map[string]*Entry

// Store guards the single bot_settings.json document with read-modify-write
// semantics. Loading yields defaults on any I/O or parse failure; writing
// pretty-prints and replaces the file.
type Store struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Open loads (or lazily creates, on first Save) the settings document at
// the well-known path.
func Open() *Store {
	s := &Store{path: paths.SettingsPath(), doc: document{}}
	s.load()
	return s
}

// OpenAt is Open with an explicit path, used by tests.
func OpenAt(path string) *Store {
	s := &Store{path: path, doc: document{}}
	s.load()
	return s
}

func (s *Store) load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		s.doc = document{}
		return
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.doc = document{}
		return
	}
	if doc == nil {
		doc = document{}
	}
	s.doc = doc
}

func (s *Store) save() error {
	if err := paths.EnsureDir(filepath.Dir(s.path)); err != nil {
		return err
	}

	lockPath := s.path + ".lock"
	fileLock := flock.New(lockPath)
	if err := fileLock.Lock(); err != nil {
		return err
	}
	defer fileLock.Unlock()

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// CredentialKey derives the per-surface key the document is indexed by:
// prefix + first 16 hex digits of SHA-256(token). Surface A (Discord) uses
// prefix "discord_"; surface B (Telegram) uses no prefix, so the two
// keyspaces never collide within the same file.
func CredentialKey(prefix, token string) string {
	sum := sha256.Sum256([]byte(token))
	return prefix + hex.EncodeToString(sum[:])[:16]
}

// entryLocked returns (creating if absent) the entry for key. Caller must
// hold s.mu.
func (s *Store) entryLocked(key, token string) *Entry {
	e, ok := s.doc[key]
	if !ok {
		e = &Entry{
			Token:        token,
			AllowedTools: tools.DefaultAllowedTools(),
			LastSessions: map[string]string{},
		}
		s.doc[key] = e
	}
	if e.LastSessions == nil {
		e.LastSessions = map[string]string{}
	}
	if e.AllowedTools == nil {
		e.AllowedTools = tools.DefaultAllowedTools()
	}
	return e
}

// Entry returns a copy of the entry for the given credential, creating one
// with defaults (and persisting it) if it doesn't yet exist.
func (s *Store) Entry(key, token string) (Entry, error) {
	s.mu.Lock()
	e := s.entryLocked(key, token)
	cp := *e
	cp.AllowedTools = append([]string(nil), e.AllowedTools...)
	cp.LastSessions = copyMap(e.LastSessions)
	cp.AllowedUserIDs = append([]string(nil), e.AllowedUserIDs...)
	s.mu.Unlock()
	return cp, nil
}

// SetOwner imprints owner_user_id if unset. Owner imprinting is irreversible
// per credential within the core: once set, nothing here clears it again.
// Returns true if this call performed the imprint.
func (s *Store) SetOwner(key, token, userID string) (bool, error) {
	s.mu.Lock()
	e := s.entryLocked(key, token)
	if e.OwnerUserID != "" {
		s.mu.Unlock()
		return false, nil
	}
	e.OwnerUserID = userID
	s.mu.Unlock()
	return true, s.save()
}

// IsAccepted reports whether userID is authorized: it is the owner or is
// contained in the allowlist.
func (s *Store) IsAccepted(key, token, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key, token)
	if e.OwnerUserID == "" {
		return false // caller must imprint first via SetOwner
	}
	if e.OwnerUserID == userID {
		return true
	}
	for _, id := range e.AllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// IsOwner reports whether userID is the imprinted owner for key.
func (s *Store) IsOwner(key, token, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key, token)
	return e.OwnerUserID != "" && e.OwnerUserID == userID
}

// HasOwner reports whether key has an imprinted owner yet.
func (s *Store) HasOwner(key, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryLocked(key, token).OwnerUserID != ""
}

// AddAllowedUser appends userID to the allowlist (owner-only operation;
// caller is responsible for the owner check).
func (s *Store) AddAllowedUser(key, token, userID string) error {
	s.mu.Lock()
	e := s.entryLocked(key, token)
	for _, id := range e.AllowedUserIDs {
		if id == userID {
			s.mu.Unlock()
			return nil
		}
	}
	e.AllowedUserIDs = append(e.AllowedUserIDs, userID)
	s.mu.Unlock()
	return s.save()
}

// RemoveAllowedUser removes userID from the allowlist.
func (s *Store) RemoveAllowedUser(key, token, userID string) error {
	s.mu.Lock()
	e := s.entryLocked(key, token)
	out := e.AllowedUserIDs[:0]
	for _, id := range e.AllowedUserIDs {
		if id != userID {
			out = append(out, id)
		}
	}
	e.AllowedUserIDs = out
	s.mu.Unlock()
	return s.save()
}

// AllowedTools returns the current allowlist for key.
func (s *Store) AllowedTools(key, token string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key, token)
	return append([]string(nil), e.AllowedTools...)
}

// SetAllowedTools replaces the allowlist for key.
func (s *Store) SetAllowedTools(key, token string, allowed []string) error {
	s.mu.Lock()
	e := s.entryLocked(key, token)
	e.AllowedTools = append([]string(nil), allowed...)
	s.mu.Unlock()
	return s.save()
}

// AddAllowedTool adds a normalized tool name to the allowlist if absent.
func (s *Store) AddAllowedTool(key, token, name string) error {
	norm := tools.Normalize(name)
	s.mu.Lock()
	e := s.entryLocked(key, token)
	for _, t := range e.AllowedTools {
		if t == norm {
			s.mu.Unlock()
			return nil
		}
	}
	e.AllowedTools = append(e.AllowedTools, norm)
	s.mu.Unlock()
	return s.save()
}

// RemoveAllowedTool removes a normalized tool name from the allowlist.
func (s *Store) RemoveAllowedTool(key, token, name string) error {
	norm := tools.Normalize(name)
	s.mu.Lock()
	e := s.entryLocked(key, token)
	out := e.AllowedTools[:0]
	for _, t := range e.AllowedTools {
		if t != norm {
			out = append(out, t)
		}
	}
	e.AllowedTools = out
	s.mu.Unlock()
	return s.save()
}

// LastSession returns the last working directory recorded for a
// conversation key, if any.
func (s *Store) LastSession(key, token, conversationKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key, token)
	p, ok := e.LastSessions[conversationKey]
	return p, ok
}

// SetLastSession records the working directory last used for a conversation.
func (s *Store) SetLastSession(key, token, conversationKey, workingDir string) error {
	s.mu.Lock()
	e := s.entryLocked(key, token)
	e.LastSessions[conversationKey] = workingDir
	s.mu.Unlock()
	return s.save()
}

// ResolveByHash scans entries for one whose credential hash matches key,
// returning its raw token. This supports subprocess helpers (the agent's
// file-send tool) that receive only the hash, never the raw credential, to
// avoid leaking it into prompts.
func (s *Store) ResolveByHash(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.doc[key]
	if !ok {
		return "", false
	}
	return e.Token, true
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
