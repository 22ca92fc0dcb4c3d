package vision

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Disabled(t *testing.T) {
	t.Parallel()

	c := New(Config{})
	assert.False(t, c.Enabled())

	_, err := c.Analyze(context.Background(), Request{IssueID: "i-1"})
	assert.Error(t, err)
}

func TestClient_Analyze(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "i-1", req.IssueID)

		depth := 8.0
		_ = json.NewEncoder(w).Encode(Result{
			DefectClass: "pothole",
			Confidence:  0.87,
			DepthCM:     &depth,
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	require.True(t, c.Enabled())

	res, err := c.Analyze(context.Background(), Request{IssueID: "i-1", Category: "pothole", Lat: 40.7, Lng: -74.0})
	require.NoError(t, err)
	assert.Equal(t, "pothole", res.DefectClass)
	assert.Equal(t, 0.87, res.Confidence)
	require.NotNil(t, res.DepthCM)
	assert.Equal(t, 8.0, *res.DepthCM)
}

func TestClient_AnalyzeServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxAttempts: 1})
	_, err := c.Analyze(context.Background(), Request{IssueID: "i-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestClient_AnalyzeRetriesTransient(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(Result{DefectClass: "crack", Confidence: 0.7})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxAttempts: 3})
	res, err := c.Analyze(context.Background(), Request{IssueID: "i-1"})
	require.NoError(t, err)
	assert.Equal(t, "crack", res.DefectClass)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_AnalyzeNoRetryOnClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, MaxAttempts: 3})
	_, err := c.Analyze(context.Background(), Request{IssueID: "i-1"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
