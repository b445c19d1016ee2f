package callctl

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxline-ai/voxline-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEndCallMarksCallCompleted(t *testing.T) {
	var gotPath, gotStatus, gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotStatus = r.FormValue("Status")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default().Telephony
	cfg.APIBaseURL = srv.URL
	cfg.AccountSID = "AC123"
	cfg.AuthToken = "token"

	ctl := NewTwilioController(cfg, newLogger())
	if err := ctl.EndCall(context.Background(), "CA456"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/Accounts/AC123/Calls/CA456.json" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotStatus != "completed" {
		t.Fatalf("unexpected status %q", gotStatus)
	}
	if gotUser != "AC123" {
		t.Fatalf("unexpected basic auth user %q", gotUser)
	}
}

func TestEndCallRejectsInvalidID(t *testing.T) {
	ctl := NewTwilioController(config.Default().Telephony, newLogger())
	if err := ctl.EndCall(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty call id")
	}
	if err := ctl.EndCall(context.Background(), "unknown"); err == nil {
		t.Fatal("expected error for placeholder call id")
	}
}

func TestEndCallSurfacesAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default().Telephony
	cfg.APIBaseURL = srv.URL
	ctl := NewTwilioController(cfg, newLogger())
	if err := ctl.EndCall(context.Background(), "CA456"); err == nil {
		t.Fatal("expected error from API failure")
	}
}
