package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/model"
)

func fastRetries() RemoteOption {
	return WithRetryBackoff(time.Millisecond, 5*time.Millisecond)
}

func TestRemoteSendsBothItems(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", r.Header.Get("Authorization"))
		}
		var body struct {
			LostItem  map[string]any `json:"lostItem"`
			FoundItem map[string]any `json:"foundItem"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.LostItem["item_name"] != "Umbrella" || body.FoundItem["date_found"] == nil {
			t.Errorf("unexpected request body %+v", body)
		}
		w.Write([]byte(`{"is_match": true, "reason": "same umbrella", "score": 0.93}`))
	}))
	defer server.Close()

	lost := item(model.KindLost, "Umbrella", "", "Other", "", 10)
	found := item(model.KindFound, "Umbrella", "", "Other", "", 11)

	v, err := NewRemote(server.URL, "secret").Classify(context.Background(), lost, found)
	require.NoError(t, err)
	assert.Equal(t, Verdict{IsMatch: true, Reason: "same umbrella", Score: 0.93}, v)
}

func TestRemoteDefaultsScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"is_match": true}`))
	}))
	defer server.Close()

	v, err := NewRemote(server.URL, "").Classify(context.Background(), &model.Item{}, &model.Item{})
	require.NoError(t, err)
	assert.True(t, v.IsMatch)
	assert.Equal(t, 1.0, v.Score)
}

func TestRemoteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"is_match": false, "reason": "different colour", "score": 0.1}`))
	}))
	defer server.Close()

	v, err := NewRemote(server.URL, "", fastRetries()).Classify(context.Background(), &model.Item{}, &model.Item{})
	require.NoError(t, err)
	assert.False(t, v.IsMatch)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewRemote(server.URL, "", WithMaxRetries(2), fastRetries()).
		Classify(context.Background(), &model.Item{}, &model.Item{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemoteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewRemote(server.URL, "", fastRetries()).Classify(context.Background(), &model.Item{}, &model.Item{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnavailable))
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemoteHonoursDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewRemote(server.URL, "", fastRetries()).Classify(ctx, &model.Item{}, &model.Item{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(context.Background(), config.Classifier{Provider: config.ProviderHeuristic, Threshold: 0.6})
	require.NoError(t, err)
	assert.IsType(t, &Heuristic{}, c)

	c, err = New(context.Background(), config.Classifier{Provider: config.ProviderHTTP, URL: "http://localhost"})
	require.NoError(t, err)
	assert.IsType(t, &Remote{}, c)

	_, err = New(context.Background(), config.Classifier{Provider: "oracle"})
	assert.Error(t, err)
}
