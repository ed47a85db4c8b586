package node

import (
	"github.com/actorway/actorway/internal/actor"
)

// builtinActors mirrors ActorNode's builtin_actors list: every node
// answers actor.health regardless of what the deployment registers.
// Timer firing is handled natively by timerLoop rather than a dedicated
// actor.timer actor, since Descriptor.Timer already carries the interval.
func (n *Node) builtinActors() []actor.Descriptor {
	return []actor.Descriptor{
		{
			Name:   "actor.health",
			Module: "actor",
			Kind:   actor.Cooperative,
			Invoke: func(ctx *actor.Context, content map[string]any) (map[string]any, error) {
				return n.Health(), nil
			},
		},
	}
}
