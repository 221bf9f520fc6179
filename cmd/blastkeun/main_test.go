package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/anotheregi/blastkeun/internal/cache"
	"github.com/anotheregi/blastkeun/internal/config"
	"github.com/anotheregi/blastkeun/internal/model"
)

var testDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoggingMiddleware_PassesThroughAndCapturesStatus(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}
	if body := rr.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
	if rr.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected %s header to be set", requestIDHeader)
	}
}

func TestLoggingMiddleware_KeepsIncomingRequestID(t *testing.T) {
	handler := loggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected request id %q, got %q", "req-42", got)
	}
}

func TestModesCommand(t *testing.T) {
	var out bytes.Buffer
	modesCmd.SetOut(&out)
	t.Cleanup(func() { modesCmd.SetOut(nil) })

	if err := modesCmd.RunE(modesCmd, nil); err != nil {
		t.Fatalf("modes command error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two modes, got %q", out.String())
	}
	if !strings.HasPrefix(lines[1], "v1") || !strings.Contains(lines[1], "Standard Mode") {
		t.Fatalf("unexpected first mode line %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "v2") || !strings.Contains(lines[2], "45s-3m0s") {
		t.Fatalf("unexpected second mode line %q", lines[2])
	}
}

func TestNewGateway_Mock(t *testing.T) {
	gw := newGateway(config.GatewayConfig{Mode: config.GatewayMock, RatePerSec: 0})

	if err := gw.Ready(context.Background()); err != nil {
		t.Fatalf("Ready() error: %v", err)
	}
	id, err := gw.Send(context.Background(), "6281234567890", "hi")
	if err != nil || id == "" {
		t.Fatalf("Send() = %q, %v", id, err)
	}
}

func TestNewQuota_WithoutRedisUsesMemory(t *testing.T) {
	q, closeFn, err := newQuota(context.Background(), config.RedisConfig{}, discardLogger())
	if err != nil {
		t.Fatalf("newQuota() error: %v", err)
	}
	defer closeFn()

	if _, ok := q.(*cache.MemoryQuota); !ok {
		t.Fatalf("expected memory quota, got %T", q)
	}
	if err := q.Add(context.Background(), "owner", model.ModeSafe, testDay, 2); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
}

func TestOpenLedger_SQLite(t *testing.T) {
	db, ledger, err := openLedger(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		URL:    "file:" + t.TempDir() + "/blast.db",
	})
	if err != nil {
		t.Fatalf("openLedger() error: %v", err)
	}
	defer db.Close()

	sessions, err := ledger.ListSessions(context.Background(), "owner", 10, 0)
	if err != nil {
		t.Fatalf("ListSessions() error: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected empty ledger, got %d sessions", len(sessions))
	}
}
