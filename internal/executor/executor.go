// Package executor dispatches messages pulled from storage to actor
// handlers across three worker pools, and gives handlers the ask/tell/hope
// surface to send further messages.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/actorway/actorway/internal/actor"
	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/actorlog"
	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/registry"
	"github.com/actorway/actorway/internal/storage"
	"github.com/rs/zerolog"
)

// RemoteSubmitter is the narrow view of sender.Sender the executor needs:
// durable, retried delivery for tell/hope, and a synchronous round trip for
// ask. Kept as an interface to avoid an executor<->sender import cycle
// (sender needs nothing from executor, but node wires both together).
type RemoteSubmitter interface {
	Submit(msg message.Message) error
	AskSync(ctx context.Context, msg message.Message, timeout time.Duration) (map[string]any, error)
}

// Executor owns the three pool channels and the dispatch loop pulling from
// storage. Asks never enter the pool queues: HandleAsk runs them inline, so
// there is no in-process waiter table to manage.
type Executor struct {
	store  storage.Storage
	actors *actor.Registry
	reg    *registry.View
	remote RemoteSubmitter
	log    zerolog.Logger

	coopCh   chan message.Message
	threadCh chan message.Message
	cpuCh    chan message.Message
	sizes    Sizes

	batchSize int
	pollEvery time.Duration
}

// Sizes configures each pool's bounded capacity (the channel buffer) and
// worker count.
type Sizes struct {
	CoopWorkers, CoopQueue     int
	ThreadWorkers, ThreadQueue int
	CPUWorkers, CPUQueue       int
}

func New(store storage.Storage, actors *actor.Registry, reg *registry.View, remote RemoteSubmitter, sizes Sizes) *Executor {
	return &Executor{
		store:      store,
		actors:     actors,
		reg:        reg,
		remote:     remote,
		log:        actorlog.New("executor"),
		coopCh:     make(chan message.Message, sizes.CoopQueue),
		threadCh:   make(chan message.Message, sizes.ThreadQueue),
		cpuCh:      make(chan message.Message, sizes.CPUQueue),
		sizes:      sizes,
		batchSize:  16,
		pollEvery:  20 * time.Millisecond,
	}
}

// Start launches the pool workers and the dispatch loop; it returns once
// ctx is cancelled and every worker has exited.
func (e *Executor) Start(ctx context.Context) {
	var wg sync.WaitGroup

	spawn := func(n int, ch chan message.Message) {
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.worker(ctx, ch)
			}()
		}
	}
	spawn(e.sizes.CoopWorkers, e.coopCh)
	spawn(e.sizes.ThreadWorkers, e.threadCh)
	spawn(e.sizes.CPUWorkers, e.cpuCh)

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.dispatchLoop(ctx)
	}()

	wg.Wait()
}

func (e *Executor) worker(ctx context.Context, ch chan message.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			e.run(msg)
		}
	}
}

// dispatchLoop pulls pending messages from storage and routes each into
// the pool its descriptor's Kind selects, blocking on a full pool channel —
// which is how the spec's "excess remains in Storage" backpressure is
// realized: the loop simply stops pulling more than a pool has room for.
func (e *Executor) dispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(e.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msgs, err := e.store.TakePending(e.batchSize)
			if err != nil {
				e.log.Warn().Err(err).Msg("take pending failed")
				continue
			}
			for _, msg := range msgs {
				e.enqueue(ctx, msg)
			}
		}
	}
}

func (e *Executor) enqueue(ctx context.Context, msg message.Message) {
	d, ok := e.actors.Lookup(msg.Dst)
	ch := e.coopCh
	if ok {
		switch d.Kind {
		case actor.Blocking:
			ch = e.threadCh
		case actor.CPU:
			ch = e.cpuCh
		}
	}
	select {
	case ch <- msg:
	case <-ctx.Done():
	}
}

// HandleAsk synchronously executes a local ask, bypassing the pool queues,
// as specified for Node.ask's local fast path. It reserves the entry as
// EXECUTING atomically with its BEGIN record via BeginExclusive, rather
// than Begin's plain INBOX, so the concurrently-running dispatchLoop's
// TakePending poll can never also claim this id and invoke the handler a
// second time.
func (e *Executor) HandleAsk(msg message.Message) (map[string]any, error) {
	if err := e.store.BeginExclusive(msg); err != nil {
		return nil, err
	}
	return e.invoke(msg)
}

func (e *Executor) run(msg message.Message) {
	if _, err := e.invoke(msg); err != nil {
		e.log.Debug().Err(err).Str("id", msg.ID.String()).Msg("handler returned error")
	}
}

// invoke looks up the descriptor, validates, calls the handler, validates
// the result, and records the terminal outcome.
func (e *Executor) invoke(msg message.Message) (map[string]any, error) {
	d, ok := e.actors.Lookup(msg.Dst)
	if !ok {
		err := actorerr.Routing(fmt.Sprintf("no handler registered for %q", msg.Dst))
		e.fail(msg, err)
		return nil, err
	}

	if err := d.ValidateInput(msg.Content); err != nil {
		aerr := actorerr.Schema("input validation failed", err).WithActor(msg.Dst)
		e.fail(msg, aerr)
		return nil, aerr
	}

	ctx := actor.NewContext(actor.MessageView{
		ID:      msg.ID.String(),
		Src:     msg.Src,
		Dst:     msg.Dst,
		Content: msg.Content,
	}, &boundDispatcher{ex: e, src: msg.Dst})

	result, err := d.Invoke(ctx, msg.Content)
	if err != nil {
		aerr := actorerr.Handler("handler returned an error", err).WithActor(msg.Dst)
		e.fail(msg, aerr)
		return nil, aerr
	}

	if err := d.ValidateOutput(result); err != nil {
		aerr := actorerr.Schema("output validation failed", err).WithActor(msg.Dst)
		e.fail(msg, aerr)
		return nil, aerr
	}

	if err := e.store.Done(msg.ID, result); err != nil {
		e.log.Warn().Err(err).Msg("failed to record DONE")
	}
	return result, nil
}

func (e *Executor) fail(msg message.Message, aerr *actorerr.Error) {
	info := message.ErrorInfo{Kind: string(aerr.Kind()), Message: aerr.Error(), Actor: aerr.Actor}
	if err := e.store.Error(msg.ID, info); err != nil {
		e.log.Warn().Err(err).Msg("failed to record ERROR")
	}
}

// Route completes and durably records msg for a tell/hope destination,
// locally or remotely, used by boundDispatcher and by the node's inbound
// receiver path.
func (e *Executor) Route(msg message.Message) error {
	completed, err := e.reg.CompleteMessage(msg)
	if err != nil {
		return err
	}
	if e.reg.IsLocal(completed) {
		return e.store.Begin(completed)
	}
	return e.remote.Submit(completed)
}
