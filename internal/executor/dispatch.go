package executor

import (
	"context"
	"time"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/message"
)

// boundDispatcher is the actor.Dispatcher a single handler invocation sees,
// bound to the actor name that is sending (so outgoing messages carry the
// right Src without the handler having to supply it itself).
type boundDispatcher struct {
	ex  *Executor
	src string
}

// Tell sends content to dst with require_ack durability: the message is
// recorded and, for a remote destination, retried by Sender until acked.
func (d *boundDispatcher) Tell(dst string, content map[string]any) error {
	return d.ex.Route(message.Message{
		ID:         message.NewID(),
		Src:        d.src,
		Dst:        dst,
		Content:    content,
		RequireAck: true,
	})
}

// Hope sends content to dst fire-and-forget, with no ack/retry guarantee.
func (d *boundDispatcher) Hope(dst string, content map[string]any) error {
	return d.ex.Route(message.Message{
		ID:      message.NewID(),
		Src:     d.src,
		Dst:     dst,
		Content: content,
	})
}

// Ask sends content to dst and blocks for a response or timeout. Local
// destinations execute synchronously via HandleAsk, bypassing the pool
// queues; remote destinations use the synchronous /ask HTTP round trip.
func (d *boundDispatcher) Ask(dst string, content map[string]any, timeout time.Duration) (map[string]any, error) {
	msg := message.Message{
		ID:      message.NewID(),
		Src:     d.src,
		Dst:     dst,
		Content: content,
		IsAsk:   true,
	}

	completed, err := d.ex.reg.CompleteMessage(msg)
	if err != nil {
		return nil, err
	}

	if d.ex.reg.IsLocal(completed) {
		return d.ex.HandleAsk(completed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	result, err := d.ex.remote.AskSync(ctx, completed, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, actorerr.Timeout("ask deadline exceeded").WithActor(dst)
		}
		return nil, err
	}
	return result, nil
}
