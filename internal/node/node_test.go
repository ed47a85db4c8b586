package node

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/actorway/actorway/internal/actor"
	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/registry"
	"github.com/stretchr/testify/require"
)

func waitUntilUp(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("node at %s never came up", addr)
}

func pingActor() actor.Descriptor {
	return actor.Descriptor{
		Name:   "worker.ping",
		Module: "worker",
		Kind:   actor.Cooperative,
		Invoke: func(ctx *actor.Context, content map[string]any) (map[string]any, error) {
			return map[string]any{"pong": true}, nil
		},
	}
}

func TestLocalAskResolvesSynchronously(t *testing.T) {
	n, err := New(Config{Name: "solo", Host: "127.0.0.1", Port: 18081}, []actor.Descriptor{pingActor()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)
	waitUntilUp(t, "127.0.0.1:18081")

	result, err := n.exec.HandleAsk(message.Message{
		ID: message.NewID(), Src: "test.caller", Dst: "worker.ping",
		Content: map[string]any{}, IsAsk: true,
	})
	require.NoError(t, err)
	require.Equal(t, true, result["pong"])
}

func TestTwoNodeTellIsDeliveredAndAcked(t *testing.T) {
	relayed := make(chan map[string]any, 1)
	relayActor := actor.Descriptor{
		Name:   "worker.relay",
		Module: "worker",
		Kind:   actor.Cooperative,
		Invoke: func(ctx *actor.Context, content map[string]any) (map[string]any, error) {
			relayed <- content
			return map[string]any{}, nil
		},
	}

	workerSpec := registry.NodeSpec{
		Name: "worker-node", Modules: []string{"worker"},
		Networks: []registry.Network{{Name: "default", URL: "http://127.0.0.1:18091"}},
	}

	worker, err := New(Config{Name: "worker-node", Host: "127.0.0.1", Port: 18091}, []actor.Descriptor{relayActor})
	require.NoError(t, err)
	caller, err := New(Config{
		Name: "caller-node", Host: "127.0.0.1", Port: 18090,
		RegistryNode: &workerSpec,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)
	go caller.Run(ctx)
	waitUntilUp(t, "127.0.0.1:18091")
	waitUntilUp(t, "127.0.0.1:18090")

	// New() already seeded the registry with registryNode via registry.New,
	// but reconfirm the update explicitly the way a live registry push
	// would, exercising View.Update on a running node.
	require.NoError(t, caller.reg.Update([]registry.NodeSpec{
		caller.reg.CurrentNode(),
		workerSpec,
	}))

	id := message.NewID()
	err = caller.exec.Route(message.Message{
		ID: id, Src: "caller-node.client", Dst: "worker.relay",
		Content: map[string]any{"hello": "world"}, RequireAck: true,
	})
	require.NoError(t, err)

	select {
	case content := <-relayed:
		require.Equal(t, "world", content["hello"])
	case <-time.After(3 * time.Second):
		t.Fatal("tell was never delivered to the remote actor")
	}

	require.Eventually(t, func() bool {
		st, ok := caller.store.Lookup(id)
		return ok && st.Status == message.StatusAcked
	}, 3*time.Second, 20*time.Millisecond, "caller's outbox entry was never acked")
}
