package shared

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/itismyfield/cokacdir/internal/agentproc"
	"github.com/itismyfield/cokacdir/internal/sessions"
	"github.com/itismyfield/cokacdir/internal/settings"
)

func newTestData(t *testing.T) *Data {
	t.Helper()
	root := t.TempDir()
	st := settings.OpenAt(filepath.Join(root, "bot_settings.json"))
	sessStore := sessions.NewAt(filepath.Join(root, "sessions"), st, "k", "tok")
	return New(sessStore, st)
}

func TestRecordAndLookupAPICall(t *testing.T) {
	d := newTestData(t)
	if _, ok := d.LastAPICall("discord:send"); ok {
		t.Fatalf("expected no recorded call yet")
	}

	now := time.Now()
	d.RecordAPICall("discord:send", now)

	got, ok := d.LastAPICall("discord:send")
	if !ok || !got.Equal(now) {
		t.Fatalf("expected recorded timestamp to round-trip, got %v ok=%v", got, ok)
	}
}

func TestSessionsAndSettingsAccessorsReturnWiredStores(t *testing.T) {
	d := newTestData(t)
	if d.Sessions() == nil {
		t.Fatalf("expected wired session store")
	}
	if d.Settings() == nil {
		t.Fatalf("expected wired settings store")
	}
}

func TestRegistryStartRejectsSecondInFlightForSameKey(t *testing.T) {
	r := NewRegistry()
	key := sessions.Key{Surface: "discord", ConversationKey: "chan-1"}
	tok1 := agentproc.NewCancelToken()
	tok2 := agentproc.NewCancelToken()

	if !r.Start(key, tok1) {
		t.Fatalf("expected first Start to succeed")
	}
	if r.Start(key, tok2) {
		t.Fatalf("expected second Start for same key to be rejected")
	}

	r.Finish(key)
	if !r.Start(key, tok2) {
		t.Fatalf("expected Start to succeed again after Finish")
	}
}

func TestRegistryStopIsIdempotent(t *testing.T) {
	r := NewRegistry()
	key := sessions.Key{Surface: "telegram", ConversationKey: "chat-1"}
	tok := agentproc.NewCancelToken()
	r.Start(key, tok)

	if !r.Stop(key) {
		t.Fatalf("expected first Stop to report success")
	}
	if r.Stop(key) {
		t.Fatalf("expected second Stop to report already-stopping (false)")
	}
	if !tok.Cancelled() {
		t.Fatalf("expected token to be cancelled")
	}
}

func TestRegistryStopReportsFalseWhenNothingInFlight(t *testing.T) {
	r := NewRegistry()
	key := sessions.Key{Surface: "discord", ConversationKey: "chan-9"}
	if r.Stop(key) {
		t.Fatalf("expected Stop on unknown key to report false")
	}
}

func TestRegistryLookupReflectsStartAndFinish(t *testing.T) {
	r := NewRegistry()
	key := sessions.Key{Surface: "discord", ConversationKey: "chan-2"}
	tok := agentproc.NewCancelToken()

	if _, ok := r.Lookup(key); ok {
		t.Fatalf("expected no token before Start")
	}
	r.Start(key, tok)
	if got, ok := r.Lookup(key); !ok || got != tok {
		t.Fatalf("expected Lookup to return the started token")
	}
	r.Finish(key)
	if _, ok := r.Lookup(key); ok {
		t.Fatalf("expected no token after Finish")
	}
}
