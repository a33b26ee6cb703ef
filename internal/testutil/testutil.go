// Package testutil provides shared test helpers for settings databases and a fake model provider.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/dastan/internal/llm"
	"github.com/starford/dastan/internal/settings"
)

// TestSettings opens a temporary settings database that is closed on cleanup.
func TestSettings(t *testing.T) *settings.Store {
	t.Helper()
	store, err := settings.Open(context.Background(), filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// FakeProvider is an httptest server speaking the responses endpoint.
type FakeProvider struct {
	Server *httptest.Server

	status atomic.Int64
	text   atomic.Value
	calls  atomic.Int64
	last   atomic.Value
}

// NewFakeProvider starts a provider that answers 200 with output_text set to text.
func NewFakeProvider(t *testing.T, text string) *FakeProvider {
	t.Helper()
	p := &FakeProvider{}
	p.Reply(http.StatusOK, text)
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Server.Close)
	return p
}

// Reply changes the status and output_text of subsequent responses.
// For non-2xx statuses text is sent as the raw error body.
func (p *FakeProvider) Reply(status int, text string) {
	p.status.Store(int64(status))
	p.text.Store(text)
}

// Calls returns the number of requests received.
func (p *FakeProvider) Calls() int { return int(p.calls.Load()) }

// LastRequest returns the decoded body of the latest request.
func (p *FakeProvider) LastRequest() map[string]any {
	v, _ := p.last.Load().(map[string]any)
	return v
}

// Client returns an llm.Client pointed at the fake provider without retries.
func (p *FakeProvider) Client() *llm.Client {
	hc := p.Server.Client()
	hc.Timeout = 5 * time.Second
	return llm.NewClient(llm.Config{
		Endpoint: p.Server.URL,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
	}, llm.WithHTTPClient(hc))
}

func (p *FakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	p.calls.Add(1)
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
		p.last.Store(body)
	}

	status := int(p.status.Load())
	text, _ := p.text.Load().(string)
	if status < 200 || status > 299 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(text))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"output_text": text})
}
