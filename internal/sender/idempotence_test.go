package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/registry"
	"github.com/actorway/actorway/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestDeliverOnceAckingTwiceIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var envs []envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envs))
		ids := make([]message.ID, 0, len(envs))
		for _, e := range envs {
			ids = append(ids, e.ID)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(notifyResponse{Received: ids})
	}))
	defer srv.Close()

	store := storage.NewMemory(100, 100)
	reg, err := registry.New(registry.NodeSpec{
		Name: "a", Networks: []registry.Network{{Name: "default", URL: "http://127.0.0.1:1"}},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Update([]registry.NodeSpec{
		{Name: "a", Networks: []registry.Network{{Name: "default", URL: "http://127.0.0.1:1"}}},
		{Name: "b", Modules: []string{"worker"}, Networks: []registry.Network{{Name: "default", URL: srv.URL}}},
	}))

	s := New(store, reg, Config{Workers: 1, QueueSize: 8})

	msg := message.Message{ID: message.NewID(), Src: "a.caller", Dst: "worker.ping", DstNode: "b", Content: map[string]any{}, RequireAck: true}
	require.NoError(t, s.Submit(msg))

	s.deliverOnce(msg)
	st, ok := store.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusAcked, st.Status)

	// Replaying the same delivery (as a duplicate retry racing the ack)
	// must not error or double-apply.
	s.deliverOnce(msg)
	require.NoError(t, store.Ack(msg.ID))
	st, _ = store.Lookup(msg.ID)
	require.Equal(t, message.StatusAcked, st.Status)
}

func TestAskSyncRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env envelope
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(askResponse{Content: map[string]any{"echo": env.Content["msg"]}})
	}))
	defer srv.Close()

	store := storage.NewMemory(100, 100)
	reg, err := registry.New(registry.NodeSpec{
		Name: "a", Networks: []registry.Network{{Name: "default", URL: "http://127.0.0.1:1"}},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Update([]registry.NodeSpec{
		{Name: "a", Networks: []registry.Network{{Name: "default", URL: "http://127.0.0.1:1"}}},
		{Name: "b", Modules: []string{"worker"}, Networks: []registry.Network{{Name: "default", URL: srv.URL}}},
	}))
	_ = store

	s := New(store, reg, Config{Workers: 1, QueueSize: 8})
	msg := message.Message{ID: message.NewID(), Src: "a.caller", Dst: "worker.echo", DstNode: "b", Content: map[string]any{"msg": "hi"}, IsAsk: true}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	result, err := s.AskSync(ctx, msg, time.Second)
	require.NoError(t, err)
	require.Equal(t, "hi", result["echo"])
}
