package node

import (
	"context"
	"time"

	"github.com/actorway/actorway/internal/message"
)

// timerLoop fires a hope message to every actor with a configured Timer
// interval once that interval elapses, the native-Go counterpart to
// actorlib's actor.timer special actor and its internal asyncio loop.
func (n *Node) timerLoop(ctx context.Context) {
	descriptors := n.actors.Timers()
	if len(descriptors) == 0 {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, d := range descriptors {
				deadline, ok := n.timers[d.Name]
				if !ok || now.Before(deadline) {
					continue
				}
				n.timers[d.Name] = now.Add(*d.Timer)
				if err := n.exec.Route(message.Message{
					ID: message.NewID(), Src: "node.timer", Dst: d.Name,
					DstNode: n.cfg.Name, Content: map[string]any{},
				}); err != nil {
					n.log.Warn().Err(err).Str("actor", d.Name).Msg("failed to fire timer")
				}
			}
		}
	}
}
