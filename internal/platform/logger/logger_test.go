package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizesSensitiveFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.Info("send",
		"content", "hello there",
		"user_id", "3f2c7a1e-0000-0000-0000-000000000001",
		"conversation_id", "c-1",
		"header", "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0.sig",
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["content"] != "[REDACTED]" {
		t.Fatalf("content=%v", fields["content"])
	}
	if uid, _ := fields["user_id"].(string); !strings.HasPrefix(uid, "hash:") {
		t.Fatalf("user_id=%v", fields["user_id"])
	}
	if fields["conversation_id"] != "c-1" {
		t.Fatalf("conversation_id=%v", fields["conversation_id"])
	}
	if fields["header"] != "[REDACTED]" {
		t.Fatalf("jwt-looking value leaked: %v", fields["header"])
	}
}

func TestWithCarriesSanitizedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := (&Logger{SugaredLogger: zap.New(core).Sugar()}).With("service", "Messaging", "session_id", "s-1")

	log.Debug("tick")

	fields := logs.All()[0].ContextMap()
	if fields["service"] != "Messaging" {
		t.Fatalf("service=%v", fields["service"])
	}
	if sid, _ := fields["session_id"].(string); !strings.HasPrefix(sid, "hash:") {
		t.Fatalf("session_id=%v", fields["session_id"])
	}
}

func TestLevelFromEnv(t *testing.T) {
	cases := []struct {
		raw  string
		want zapcore.Level
	}{
		{raw: "", want: zap.DebugLevel},
		{raw: "warn", want: zap.WarnLevel},
		{raw: " INFO ", want: zap.InfoLevel},
		{raw: "loud", want: zap.DebugLevel},
	}
	for _, tc := range cases {
		t.Setenv("LOG_LEVEL", tc.raw)
		if got := levelFromEnv(); got != tc.want {
			t.Fatalf("LOG_LEVEL=%q got %v want %v", tc.raw, got, tc.want)
		}
	}
}
