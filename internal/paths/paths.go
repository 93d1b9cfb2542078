// Package paths centralizes the well-known on-disk locations the control
// plane reads and writes: the settings document, the shared sessions
// directory, and the scratch workspace directories minted by `/start`.
package paths

import (
	"crypto/rand"
	"os"
	"path/filepath"
)

const globalDirName = ".cokacdir"

// GlobalDir returns ~/.cokacdir, creating nothing.
func GlobalDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, globalDirName)
}

// SettingsPath returns ~/.cokacdir/bot_settings.json.
func SettingsPath() string {
	return filepath.Join(GlobalDir(), "bot_settings.json")
}

// SessionsDir returns the well-known directory persisted session documents
// live in. All sessions across every surface and every bot credential share
// this one directory; documents are named by agent_session_id.
func SessionsDir() string {
	return filepath.Join(GlobalDir(), "sessions")
}

// WorkspaceRoot returns ~/.cokacdir/workspace, the parent of auto-generated
// working directories created by `/start` without an argument.
func WorkspaceRoot() string {
	return filepath.Join(GlobalDir(), "workspace")
}

// NewWorkspaceDir mints a fresh auto-generated working directory under
// WorkspaceRoot and creates it, returning the absolute path.
func NewWorkspaceDir() (string, error) {
	name, err := randomAlnum(8)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(WorkspaceRoot(), name)
	if err := EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// EnsureDir creates dir and all parents if they don't already exist.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

const alnumAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func randomAlnum(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alnumAlphabet[int(b)%len(alnumAlphabet)]
	}
	return string(out), nil
}
