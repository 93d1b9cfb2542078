// Package auth implements the auth gate (C4): first-run owner imprinting
// and subsequent allowlist-based acceptance, grounded directly on the
// check_auth/check_owner flow from the original cokacdir Discord service.
package auth

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/itismyfield/cokacdir/internal/settings"
)

// auditLog writes auth decisions to stdout.
var auditLog = log.New(os.Stdout, "", log.LstdFlags)

// Gate decides whether a user may interact with a given bot credential.
type Gate struct {
	settings *settings.Store
}

// New wraps a settings store with the auth-gate decision logic.
func New(store *settings.Store) *Gate {
	return &Gate{settings: store}
}

// Check authorizes userID against key/token, imprinting the first-seen user
// as owner if none is registered yet. userLabel is used only for the stdout
// audit log, never persisted.
func (g *Gate) Check(key, token, userID, userLabel string) bool {
	imprinted, err := g.settings.SetOwner(key, token, userID)
	if err != nil {
		auditLog.Printf("[AUTH] %s failed to imprint owner for %s: %v", timestamp(), userLabel, err)
	}
	if imprinted {
		auditLog.Printf("[AUTH] %s owner registered: %s (id:%s)", timestamp(), userLabel, userID)
		return true
	}

	if g.settings.IsAccepted(key, token, userID) {
		return true
	}

	auditLog.Printf("[AUTH] %s rejected: %s (id:%s)", timestamp(), userLabel, userID)
	return false
}

// IsOwner reports whether userID is the imprinted owner, for gating
// owner-only operations (adduser, removeuser).
func (g *Gate) IsOwner(key, token, userID string) bool {
	return g.settings.IsOwner(key, token, userID)
}

// RequireOwner authorizes an owner-only operation, logging the outcome.
func (g *Gate) RequireOwner(key, token, userID, userLabel, operation string) error {
	if g.IsOwner(key, token, userID) {
		return nil
	}
	auditLog.Printf("[AUTH] %s rejected owner-only op %q: %s (id:%s)", timestamp(), operation, userLabel, userID)
	return fmt.Errorf("only the owner can %s", operation)
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}
