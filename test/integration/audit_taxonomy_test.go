package integration

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// lockedBuffer guards the log sink; the server goroutines write while the
// test reads.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestAuditTaxonomySchemaAndCredentialEvents(t *testing.T) {
	var logBuf lockedBuffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() {
		slog.SetDefault(previous)
	})

	e := newCredentialTestServer(t)
	registerAndVerify(t, e, "Audit User", "audit@example.com", "audit-pass-123")

	resp, _ := login(t, e, "audit@example.com", "wrong-password")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected failed login, got %d", resp.StatusCode)
	}
	resp, _ = login(t, e, "audit@example.com", "audit-pass-123")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected login, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, e.client, http.MethodPost, e.url("/password/forgot"), map[string]string{"email": "audit@example.com"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected forgot accepted, got %d", resp.StatusCode)
	}
	e.deliver(t)
	resetToken := e.mailer.lastToken(t, "audit@example.com", "reset-password")
	resp, _ = doJSON(t, e.client, http.MethodPost, e.url("/password/reset/"+resetToken), map[string]string{"password": "audit-pass-456"}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected reset, got %d", resp.StatusCode)
	}

	logs := logBuf.String()
	events := parseAuditEvents(t, logs)
	if len(events) == 0 {
		t.Fatal("expected audit events, found none")
	}
	for _, event := range events {
		assertAuditRequiredFields(t, event)
	}

	assertHasAuditEvent(t, events, "auth.register", "success")
	assertHasAuditEvent(t, events, "auth.verify", "success")
	assertHasAuditEvent(t, events, "auth.login", "failure")
	assertHasAuditEvent(t, events, "auth.login", "success")
	assertHasAuditEvent(t, events, "auth.password.forgot", "success")
	assertHasAuditEvent(t, events, "auth.password.reset", "success")

	for _, secret := range []string{"audit-pass-123", "audit-pass-456", "wrong-password", resetToken} {
		if strings.Contains(logs, secret) {
			t.Fatalf("log output leaked a secret value %q", secret)
		}
	}
}

func parseAuditEvents(t *testing.T, logs string) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(logs))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec["msg"] == "audit" {
			out = append(out, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan logs: %v", err)
	}
	return out
}

func assertAuditRequiredFields(t *testing.T, event map[string]any) {
	t.Helper()
	for _, key := range []string{"event_version", "event_name", "actor_user_id", "actor_ip", "target_type", "target_id", "action", "outcome", "reason", "request_id", "ts"} {
		v, ok := event[key]
		if !ok {
			t.Fatalf("audit event missing %q: %+v", key, event)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			t.Fatalf("audit event has empty %q: %+v", key, event)
		}
	}
	if event["event_version"] != float64(1) {
		t.Fatalf("unexpected event_version: %+v", event["event_version"])
	}
}

func assertHasAuditEvent(t *testing.T, events []map[string]any, name, outcome string) {
	t.Helper()
	for _, event := range events {
		if event["event_name"] == name && event["outcome"] == outcome {
			return
		}
	}
	t.Fatalf("missing audit event name=%s outcome=%s", name, outcome)
}
