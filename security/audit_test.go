package security

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type countingRecorder struct {
	events []string
}

func (c *countingRecorder) RecordAuditEvent(_ context.Context, eventType string) {
	c.events = append(c.events, eventType)
}

func TestNewAuditor(t *testing.T) {
	tests := []struct {
		name    string
		logger  *slog.Logger
		enabled bool
	}{
		{"enabled with logger", slog.Default(), true},
		{"disabled with logger", slog.Default(), false},
		{"enabled with nil logger", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auditor := NewAuditor(tt.logger, tt.enabled)
			if auditor == nil {
				t.Fatal("NewAuditor() returned nil")
			}
			if auditor.enabled != tt.enabled {
				t.Errorf("enabled = %v, want %v", auditor.enabled, tt.enabled)
			}
			if auditor.logger == nil {
				t.Error("logger should not be nil")
			}
		})
	}
}

func TestAuditor_LogEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	tests := []struct {
		name    string
		enabled bool
		wantLog bool
	}{
		{"enabled", true, true},
		{"disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			auditor := NewAuditor(logger, tt.enabled)

			auditor.LogEvent(Event{
				Type:       "test_event",
				IdentityID: "6f0e7b0e-3b8e-4a43-9d1b-4b1c9a1f0d2e",
				ClientID:   "client-id",
				IPAddress:  "192.168.1.1",
			})

			if hasLog := buf.Len() > 0; hasLog != tt.wantLog {
				t.Errorf("LogEvent() logged = %v, want %v", hasLog, tt.wantLog)
			}
		})
	}
}

func TestAuditor_NilSafe(t *testing.T) {
	var auditor *Auditor
	auditor.LogCodeNotFound("client-id", "127.0.0.1")
}

func TestAuditor_HashesIdentity(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), true)

	identity := "6f0e7b0e-3b8e-4a43-9d1b-4b1c9a1f0d2e"
	auditor.LogAuthorizationApproved(identity, "client-id", "10.0.0.1")

	out := buf.String()
	if strings.Contains(out, identity) {
		t.Error("audit log must not contain the raw identity id")
	}
	if !strings.Contains(out, hashForLogging(identity)) {
		t.Error("audit log should contain the hashed identity id")
	}
	if !strings.Contains(out, EventAuthorizationApproved) {
		t.Errorf("audit log should contain event type %q", EventAuthorizationApproved)
	}
}

func TestAuditor_Helpers(t *testing.T) {
	var buf bytes.Buffer
	recorder := &countingRecorder{}
	auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), true)
	auditor.SetRecorder(recorder)

	auditor.LogAuthorizationStarted("client-id", "10.0.0.1", "S256")
	auditor.LogAuthorizationApproved("identity", "client-id", "10.0.0.1")
	auditor.LogTokenIssued("identity", "client-id", "10.0.0.1", time.Now().Add(time.Hour))
	auditor.LogAuthFailure("", "client-id", "10.0.0.1", "invalid_client_secret")
	auditor.LogCodeNotFound("client-id", "10.0.0.1")
	auditor.LogInvalidRedirect("client-id", "10.0.0.1", "http://evil/cb")
	auditor.LogRateLimitExceeded("10.0.0.1", "token")

	want := []string{
		EventAuthorizationStarted,
		EventAuthorizationApproved,
		EventTokenIssued,
		EventAuthFailure,
		EventCodeNotFound,
		EventInvalidRedirect,
		EventRateLimitExceeded,
	}
	if len(recorder.events) != len(want) {
		t.Fatalf("recorded %d events, want %d", len(recorder.events), len(want))
	}
	for i, e := range want {
		if recorder.events[i] != e {
			t.Errorf("event[%d] = %q, want %q", i, recorder.events[i], e)
		}
	}

	if got := strings.Count(buf.String(), "security_audit"); got != len(want) {
		t.Errorf("logged %d audit lines, want %d", got, len(want))
	}
}

func Test_hashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "<empty>" {
		t.Errorf("hashForLogging(\"\") = %q, want %q", got, "<empty>")
	}

	got := hashForLogging("sensitive-data")
	if got == "sensitive-data" {
		t.Error("hashForLogging() returned unhashed sensitive data")
	}
	if len(got) != 16 {
		t.Errorf("hashForLogging() returned hash of length %d, want 16", len(got))
	}
	if hashForLogging("sensitive-data") != got {
		t.Error("hashForLogging() should be deterministic")
	}
	if hashForLogging("other-data") == got {
		t.Error("hashForLogging() should differ for different inputs")
	}
}
