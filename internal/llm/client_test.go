package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/dastan/internal/apperr"
	"github.com/starford/dastan/internal/schema"
)

const summaryText = `{"full_summary":"خلاصه","key_points":["یک","دو"],"length":"short"}`

func envelopeWithOutput(text string) string {
	b, _ := json.Marshal(map[string]any{
		"output": []any{map[string]any{
			"content": []any{map[string]any{"type": "output_text", "text": text}},
		}},
	})
	return string(b)
}

func testClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	return NewClient(Config{
		Endpoint:       url,
		APIKey:         "sk-test",
		Timeout:        2 * time.Second,
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})
}

func TestCall_RequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(envelopeWithOutput(summaryText)))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	_, err := c.Call(context.Background(), Request{
		Model:  "o3-mini",
		Prompt: "summarize this",
		Schema: schema.Summary,
	})
	require.NoError(t, err)

	assert.Equal(t, "o3-mini", got["model"])
	assert.Equal(t, "summarize this", got["input"])
	rf := got["response_format"].(map[string]any)
	assert.Equal(t, "json_schema", rf["type"])
	js := rf["json_schema"].(map[string]any)
	assert.Equal(t, "summary_response", js["name"])
	assert.Equal(t, false, js["schema"].(map[string]any)["additionalProperties"])
}

func TestCall_MessagesInput(t *testing.T) {
	var got struct {
		Input []Message `json:"input"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(envelopeWithOutput(summaryText)))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	_, err := c.Call(context.Background(), Request{
		Model:    "o3-mini",
		Prompt:   "ignored",
		Messages: []Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "usr"}},
		Schema:   schema.Summary,
	})
	require.NoError(t, err)
	require.Len(t, got.Input, 2)
	assert.Equal(t, "system", got.Input[0].Role)
}

func TestCall_ProviderErrorRedacted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"org-secret quota exceeded"}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 2)
	_, err := c.Call(context.Background(), Request{Model: "o3", Prompt: "x", Schema: schema.Summary})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrProvider)
	assert.NotContains(t, err.Error(), "org-secret")

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusInternalServerError, pe.Status)
	assert.Contains(t, pe.Detail(), "org-secret")
	assert.Equal(t, int32(3), calls.Load(), "5xx retried MaxRetries times")
}

func TestCall_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 3)
	_, err := c.Call(context.Background(), Request{Model: "o3", Prompt: "x", Schema: schema.Summary})
	assert.ErrorIs(t, err, apperr.ErrProvider)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCall_RecoversAfterTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(envelopeWithOutput(summaryText)))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 2)
	out, err := c.Invoke(context.Background(), Request{Model: "o3", Prompt: "x", Schema: schema.Summary})
	require.NoError(t, err)
	assert.JSONEq(t, summaryText, string(out))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCall_TransportErrorRetried(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	var accepts atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepts.Add(1)
			conn.Close()
		}
	}()

	const retries = 2
	var dials atomic.Int32
	dialer := &net.Dialer{}
	hc := &http.Client{Transport: &http.Transport{
		DisableKeepAlives: true,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dials.Add(1)
			return dialer.DialContext(ctx, network, addr)
		},
	}}
	c := NewClient(Config{
		Endpoint:       "http://" + ln.Addr().String(),
		APIKey:         "sk-test",
		Timeout:        2 * time.Second,
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, WithHTTPClient(hc))

	_, err = c.Call(context.Background(), Request{Model: "o3", Prompt: "x", Schema: schema.Summary})
	assert.ErrorIs(t, err, apperr.ErrTransport)
	assert.Equal(t, int32(retries+1), dials.Load())
	assert.Equal(t, int32(retries+1), accepts.Load())
}

func TestCall_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := testClient(t, srv.URL, 2)
	_, err := c.Call(ctx, Request{Model: "o3", Prompt: "x", Schema: schema.Summary})
	assert.ErrorIs(t, err, apperr.ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCall_MissingAPIKey(t *testing.T) {
	c := NewClient(Config{Endpoint: "http://127.0.0.1:0"})
	_, err := c.Call(context.Background(), Request{Model: "o3", Prompt: "x", Schema: schema.Summary})
	assert.ErrorIs(t, err, apperr.ErrProvider)
}

func TestInvoke_CustomStrategies(t *testing.T) {
	env, _ := json.Marshal(map[string]any{
		"output_text": "not json",
		"choices":     []any{map[string]any{"message": map[string]any{"content": summaryText}}},
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(env)
	}))
	defer srv.Close()

	req := Request{Model: "o3", Prompt: "x", Schema: schema.Summary}

	_, err := testClient(t, srv.URL, 0).Invoke(context.Background(), req)
	assert.ErrorIs(t, err, apperr.ErrMalformedJSON)

	c := NewClient(Config{Endpoint: srv.URL, APIKey: "sk-test"}, WithStrategies(ChatChoice))
	out, err := c.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.JSONEq(t, summaryText, string(out))
}

func TestInvoke_MalformedModelText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(envelopeWithOutput("not json")))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	_, err := c.Invoke(context.Background(), Request{Model: "o3", Prompt: "x", Schema: schema.Summary})
	assert.ErrorIs(t, err, apperr.ErrMalformedJSON)
}

func TestInvoke_SchemaMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(envelopeWithOutput(`{"full_summary":"s","key_points":[1],"length":"short"}`)))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, 0)
	_, err := c.Invoke(context.Background(), Request{Model: "o3", Prompt: "x", Schema: schema.Summary})
	assert.ErrorIs(t, err, apperr.ErrSchemaMismatch)
	assert.True(t, strings.Contains(err.Error(), "key_points[0]"))
}
