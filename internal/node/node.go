// Package node wires every component — storage, actor registry, executor,
// sender, receiver, monitor, and the optional compactor — into one running
// process, the way actorlib's ActorNode assembles the Python runtime.
package node

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/actorway/actorway/internal/actor"
	"github.com/actorway/actorway/internal/actorlog"
	"github.com/actorway/actorway/internal/executor"
	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/monitor"
	"github.com/actorway/actorway/internal/receiver"
	"github.com/actorway/actorway/internal/registry"
	"github.com/actorway/actorway/internal/sender"
	"github.com/actorway/actorway/internal/storage"
	"github.com/rs/zerolog"
)

// Config bundles every knob a deployment sets, mirroring actorlib.ActorNode's
// constructor keyword arguments.
type Config struct {
	Name    string
	Host    string
	Port    int
	Subpath string
	Token   string

	Networks     []registry.Network
	RegistryNode *registry.NodeSpec

	StorageDir              string
	StorageMaxPendingSize   int
	StorageMaxDoneSize      int
	StorageCompactInterval  time.Duration

	AckTimeout    time.Duration
	MaxRetryCount int

	Executor executor.Sizes
	Sender   sender.Config
}

// defaults fills in the same fallbacks actorlib.ActorNode's keyword
// defaults provide.
func (c *Config) defaults() {
	if c.Name == "" {
		c.Name = fmt.Sprintf("actor-%d", c.Port)
	}
	if c.StorageMaxPendingSize == 0 {
		c.StorageMaxPendingSize = 100
	}
	if c.StorageMaxDoneSize == 0 {
		c.StorageMaxDoneSize = 1000
	}
	if c.StorageCompactInterval == 0 {
		c.StorageCompactInterval = 60 * time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 180 * time.Second
	}
	if c.MaxRetryCount == 0 {
		c.MaxRetryCount = 3
	}
	if c.Executor == (executor.Sizes{}) {
		c.Executor = executor.Sizes{
			CoopWorkers: 32, CoopQueue: 256,
			ThreadWorkers: 16, ThreadQueue: 128,
			CPUWorkers: 4, CPUQueue: 64,
		}
	}
	if c.Sender.Workers == 0 {
		c.Sender.Workers = 16
	}
	if c.Sender.QueueSize == 0 {
		c.Sender.QueueSize = 256
	}
	if c.Sender.AuthToken == "" {
		c.Sender.AuthToken = c.Token
	}
}

// Node is one running actor runtime process.
type Node struct {
	cfg Config
	log zerolog.Logger

	store     storage.Storage
	compactor *storage.Compactor
	actors    *actor.Registry
	reg       *registry.View
	exec      *executor.Executor
	send      *sender.Sender
	mon       *monitor.Monitor
	recv      *receiver.Receiver

	timers map[string]time.Time // descriptor name -> next fire time

	startupHooks  []func(*Node)
	shutdownHooks []func(*Node)

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New assembles a Node from cfg and the caller's actor handlers. The
// builtin actor.health actor is always registered first; timer firing is
// done by timerLoop, not by a builtin actor.
func New(cfg Config, actors []actor.Descriptor) (*Node, error) {
	cfg.defaults()

	n := &Node{cfg: cfg, log: actorlog.New("node"), timers: make(map[string]time.Time)}

	n.actors = actor.NewRegistry()
	for _, d := range n.builtinActors() {
		if err := n.actors.Register(d); err != nil {
			return nil, fmt.Errorf("node: register builtin actor: %w", err)
		}
	}
	for _, d := range actors {
		if err := n.actors.Register(d); err != nil {
			return nil, fmt.Errorf("node: register actor %q: %w", d.Name, err)
		}
	}

	networks := append([]registry.Network(nil), cfg.Networks...)
	networks = append(networks, registry.Network{
		Name: "localhost",
		URL:  fmt.Sprintf("http://127.0.0.1:%d%s", cfg.Port, cfg.Subpath),
	})
	current := registry.NodeSpec{Name: cfg.Name, Modules: n.actors.Modules(), Networks: networks}

	reg, err := registry.New(current, cfg.RegistryNode)
	if err != nil {
		return nil, fmt.Errorf("node: build registry: %w", err)
	}
	n.reg = reg

	if cfg.StorageDir != "" {
		dir := filepath.Join(cfg.StorageDir, cfg.Name)
		local, err := storage.New(dir, cfg.StorageMaxPendingSize, cfg.StorageMaxDoneSize)
		if err != nil {
			return nil, fmt.Errorf("node: open local storage: %w", err)
		}
		n.store = local
		n.compactor = storage.NewCompactor(local, cfg.StorageCompactInterval)
		local.AttachCompactor(func() {
			if err := n.compactor.Run(); err != nil {
				n.log.Warn().Err(err).Msg("synchronous compaction trigger failed")
			}
		})
	} else {
		n.log.Info().Msg("storage_dir not set, using memory storage")
		n.store = storage.NewMemory(cfg.StorageMaxPendingSize, cfg.StorageMaxDoneSize)
	}
	if err := n.store.Load(); err != nil {
		return nil, fmt.Errorf("node: load storage: %w", err)
	}

	n.send = sender.New(n.store, n.reg, cfg.Sender)
	n.exec = executor.New(n.store, n.actors, n.reg, n.send, cfg.Executor)
	n.mon = monitor.New(n.store, n.send, monitor.Config{AckTimeout: cfg.AckTimeout, MaxRetryCount: cfg.MaxRetryCount})
	n.recv = receiver.New(n.store, n.reg, n.exec, receiver.Config{
		Addr:      fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Subpath:   cfg.Subpath,
		AuthToken: cfg.Token,
	})

	for _, d := range n.actors.Timers() {
		n.timers[d.Name] = time.Now().Add(*d.Timer)
	}

	return n, nil
}

// OnStartup registers a hook run once, after every component has started
// but before the init message is sent.
func (n *Node) OnStartup(h func(*Node)) { n.startupHooks = append(n.startupHooks, h) }

// OnShutdown registers a hook run once, before components are stopped.
func (n *Node) OnShutdown(h func(*Node)) { n.shutdownHooks = append(n.shutdownHooks, h) }

// Run starts every component, blocks serving HTTP, and performs an
// orderly shutdown once ctx is cancelled or the receiver stops on its own.
func (n *Node) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	start := func(f func(context.Context)) {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			f(runCtx)
		}()
	}
	start(func(ctx context.Context) { n.send.Start(ctx, n.cfg.Sender.Workers) })
	start(n.exec.Start)
	start(n.mon.Start)
	start(n.timerLoop)
	if n.compactor != nil {
		start(n.compactor.Start)
	}

	for _, h := range n.startupHooks {
		h(n)
	}
	n.sendInitMessage()

	n.log.Info().Str("node", n.cfg.Name).Str("addr", n.recv.Addr()).Msg("actor node started")
	serveErr := make(chan error, 1)
	go func() { serveErr <- n.recv.ListenAndServe() }()

	var serveFailure error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			n.log.Error().Err(err).Msg("receiver stopped unexpectedly")
			serveFailure = err
		}
	}

	if err := n.Shutdown(context.Background()); err != nil {
		return err
	}
	return serveFailure
}

// Shutdown performs the same teardown order as ActorNode.run's finally
// block: stop accepting new requests first, run shutdown hooks, then give
// the executor/sender/monitor/compactor goroutines a grace window to drain
// before the storage log is flushed and closed underneath them.
func (n *Node) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := n.recv.Shutdown(shutdownCtx); err != nil {
		n.log.Warn().Err(err).Msg("receiver shutdown error")
	}

	for _, h := range n.shutdownHooks {
		h(n)
	}

	if n.cancel != nil {
		n.cancel()
	}
	drained := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		n.log.Warn().Msg("shutdown grace window elapsed before background loops drained")
	}

	return n.store.Close()
}

// sendInitMessage fires actor.init once at startup, the way
// ActorNode._send_init_message does, if the deployment registered one.
func (n *Node) sendInitMessage() {
	if _, ok := n.actors.Lookup("actor.init"); ok {
		if err := n.exec.Route(message.Message{
			ID: message.NewID(), Src: "node.init", Dst: "actor.init",
			DstNode: n.cfg.Name, Content: map[string]any{},
		}); err != nil {
			n.log.Warn().Err(err).Msg("failed to send actor.init")
		}
	}
}

// Health assembles the node's health data for the builtin actor.health
// actor (the /health endpoint in receiver builds its own document from
// Storage/Registry directly).
func (n *Node) Health() map[string]any {
	counters := n.store.Counters()
	return map[string]any{
		"name":     n.cfg.Name,
		"host":     n.cfg.Host,
		"port":     n.cfg.Port,
		"subpath":  n.cfg.Subpath,
		"registry": n.reg.Snapshot(),
		"storage": map[string]any{
			"pending_size":     counters.PendingSize,
			"done_size":        counters.DoneSize,
			"current_wal_size": counters.CurrentWALSize,
			"num_messages":     counters.NumMessages,
		},
	}
}
