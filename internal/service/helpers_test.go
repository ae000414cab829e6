package service

import (
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"bitcoin-gpt-client/internal/api"
	"bitcoin-gpt-client/internal/store"
)

// nopLogger keeps test output clean; the services only log, never read.
type nopLogger struct{}

func (nopLogger) Debug(string, string, map[string]interface{}) {}
func (nopLogger) Info(string, string, map[string]interface{})  {}
func (nopLogger) Warn(string, string, map[string]interface{})  {}
func (nopLogger) Error(string, string, map[string]interface{}) {}
func (nopLogger) Sync() error                                  { return nil }

func newTestCredentials(t *testing.T) *store.CredentialStore {
	t.Helper()
	creds, err := store.NewCredentialStore(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("failed to open credential store: %v", err)
	}
	t.Cleanup(func() { creds.Close() })
	return creds
}

func newTestBackend(t *testing.T, srv *httptest.Server, creds *store.CredentialStore) *api.Client {
	t.Helper()
	t.Cleanup(srv.Close)
	return api.NewClient(srv.URL, 5*time.Second, creds)
}
