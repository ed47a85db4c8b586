// Package registry maintains the client-side view of the cluster: which
// node owns which actor module, how to reach a given node over HTTP, and
// which node is "us". It intentionally says nothing about how peers
// discover each other — that is the out-of-scope registry-node wire
// protocol; this package only consumes the resulting NodeSpec list.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/message"
)

// Network is one way to reach a node: a name (used for tie-breaking) and a
// base URL.
type Network struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NodeSpec describes one cluster member: its name, the actor modules it
// hosts, and the networks it can be reached on. Two NodeSpecs are
// considered the same node iff their Name fields match.
type NodeSpec struct {
	Name    string   `json:"name"`
	Modules []string `json:"modules"`
	Networks []Network `json:"networks"`
}

// ReadView is the read-only surface of View; it excludes Update.
// actor.Context does not carry a ReadView, so handlers have no registry
// access through their context.
type ReadView interface {
	CurrentNode() NodeSpec
	Lookup(module string) (NodeSpec, bool)
	Snapshot() []NodeSpec
}

// View is the registry's mutable, copy-on-write state: readers always see
// a fully-formed snapshot, and Update swaps the snapshot atomically so a
// reader never observes a partially-applied update.
type View struct {
	mu           sync.RWMutex
	snapshot     *snapshot
	current      NodeSpec
	registryNode *NodeSpec
}

type snapshot struct {
	nodes  map[string]NodeSpec // name -> spec
	owners map[string]string   // module -> owning node name
}

// New creates a View seeded with the current node's own spec and,
// optionally, the registry node's spec (the node other peers register
// with — consumed here only as another NodeSpec, never dialed directly by
// this package).
func New(current NodeSpec, registryNode *NodeSpec) (*View, error) {
	v := &View{current: current, registryNode: registryNode}
	initial := []NodeSpec{current}
	if registryNode != nil {
		initial = append(initial, *registryNode)
	}
	if err := v.Update(initial); err != nil {
		return nil, err
	}
	return v, nil
}

// Update atomically replaces the registry's view of the cluster. It
// rejects any update that would leave two nodes claiming the same module,
// since routing requires a single authoritative owner per module.
func (v *View) Update(specs []NodeSpec) error {
	nodes := make(map[string]NodeSpec, len(specs))
	owners := make(map[string]string, len(specs)*2)
	for _, spec := range specs {
		nodes[spec.Name] = spec
		for _, mod := range spec.Modules {
			if owner, ok := owners[mod]; ok && owner != spec.Name {
				return fmt.Errorf("registry: module %q claimed by both %q and %q", mod, owner, spec.Name)
			}
			owners[mod] = spec.Name
		}
	}
	next := &snapshot{nodes: nodes, owners: owners}

	v.mu.Lock()
	v.snapshot = next
	if spec, ok := nodes[v.current.Name]; ok {
		v.current = spec
	}
	v.mu.Unlock()
	return nil
}

// CurrentNode returns the node this View was constructed for.
func (v *View) CurrentNode() NodeSpec {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.current
}

// RegistryNode returns the configured registry node spec, if any.
func (v *View) RegistryNode() *NodeSpec {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.registryNode
}

// Lookup returns the NodeSpec that owns module, if known.
func (v *View) Lookup(module string) (NodeSpec, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	name, ok := v.snapshot.owners[module]
	if !ok {
		return NodeSpec{}, false
	}
	spec, ok := v.snapshot.nodes[name]
	return spec, ok
}

// Snapshot returns every currently-known NodeSpec, for /health and for
// cluster introspection endpoints.
func (v *View) Snapshot() []NodeSpec {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]NodeSpec, 0, len(v.snapshot.nodes))
	for _, spec := range v.snapshot.nodes {
		out = append(out, spec)
	}
	return out
}

// CompleteMessage fills in msg.DstNode when unset, by resolving the
// destination actor's module to its owning node. An ask-response (a
// message with ParentID set) is allowed to go out without a resolvable
// owner, since its destination is always the asking node which the sender
// already knows out-of-band.
func (v *View) CompleteMessage(msg message.Message) (message.Message, error) {
	if msg.DstNode != "" {
		return msg, nil
	}
	if msg.IsAskResponse() {
		return msg, nil
	}
	module := msg.DstModule()
	spec, ok := v.Lookup(module)
	if !ok {
		return msg, actorerr.Routing(fmt.Sprintf("no owner known for module %q", module))
	}
	msg.DstNode = spec.Name
	return msg, nil
}

// IsLocal reports whether msg's resolved destination node is this node.
func (v *View) IsLocal(msg message.Message) bool {
	return msg.DstNode == v.CurrentNode().Name
}

// urlPolicy documents the tie-break rule ChooseURL applies, so it can be
// surfaced verbatim in /health.
const urlPolicy = "prefer a network name shared with the current node; " +
	"otherwise the target's first network; loopback networks are only " +
	"offered to peers whose address host matches the current node's own"

// URLPolicy returns the human-readable description of ChooseURL's
// tie-break rule, for /health.
func URLPolicy() string { return urlPolicy }

// ChooseURL picks a base URL to reach target from. See URLPolicy for the
// tie-break rule.
func (v *View) ChooseURL(target NodeSpec) (string, error) {
	if len(target.Networks) == 0 {
		return "", actorerr.Routing(fmt.Sprintf("node %q advertises no networks", target.Name))
	}
	current := v.CurrentNode()
	currentNames := make(map[string]struct{}, len(current.Networks))
	for _, n := range current.Networks {
		currentNames[n.Name] = struct{}{}
	}

	var fallback *Network
	for i := range target.Networks {
		net := target.Networks[i]
		if isLoopback(net) && !sameHost(net, current) {
			continue
		}
		if fallback == nil {
			fallback = &net
		}
		if _, shared := currentNames[net.Name]; shared {
			return net.URL, nil
		}
	}
	if fallback != nil {
		return fallback.URL, nil
	}
	return "", actorerr.Routing(fmt.Sprintf("node %q has no reachable network for this caller", target.Name))
}

func isLoopback(n Network) bool {
	return strings.Contains(n.URL, "127.0.0.1") || strings.Contains(n.URL, "localhost")
}

func sameHost(n Network, current NodeSpec) bool {
	host := hostOf(n.URL)
	for _, c := range current.Networks {
		if hostOf(c.URL) == host {
			return true
		}
	}
	return false
}

func hostOf(url string) string {
	s := strings.TrimPrefix(url, "http://")
	s = strings.TrimPrefix(s, "https://")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}

func (n NodeSpec) String() string {
	return fmt.Sprintf("%s(modules=%v)", n.Name, n.Modules)
}

var _ ReadView = (*View)(nil)
