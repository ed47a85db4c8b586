package receiver

import (
	"errors"
	"net/http"
	"time"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/registry"
	"github.com/gin-gonic/gin"
)

// envelopeKindAck marks a /notify batch entry as an acknowledgement of a
// previously delivered outbound message rather than a fresh tell/hope,
// per spec.md §6's "list of envelopes for tell/hope/ack". The base field
// list spec.md gives an envelope has no discriminator of its own, so Kind
// is the minimal addition needed to make that batch actually dispatchable;
// an empty Kind means "ordinary message" for backward compatibility with
// a sender that omits it entirely.
const envelopeKindAck = "ack"

// incomingEnvelope mirrors sender.envelope field-for-field; the receiver
// owns its own copy since wire shape is the contract, not a shared type.
type incomingEnvelope struct {
	ID         message.ID        `json:"id"`
	Src        string            `json:"src"`
	Dst        string            `json:"dst"`
	DstNode    string            `json:"dst_node,omitempty"`
	Content    map[string]any    `json:"content"`
	IsAsk      bool              `json:"is_ask,omitempty"`
	RequireAck bool              `json:"require_ack,omitempty"`
	ParentID   message.ID        `json:"parent_id,omitempty"`
	ExpireAt   *message.UnixTime `json:"expire_at,omitempty"`
	RetryCount int               `json:"retry_count,omitempty"`
	Kind       string            `json:"kind,omitempty"`
}

func (e incomingEnvelope) toMessage() message.Message {
	return message.Message{
		ID: e.ID, Src: e.Src, Dst: e.Dst, DstNode: e.DstNode,
		Content: e.Content, IsAsk: e.IsAsk, RequireAck: e.RequireAck,
		ParentID: e.ParentID, ExpireAt: e.ExpireAt, RetryCount: e.RetryCount,
	}
}

func writeError(c *gin.Context, status int, aerr *actorerr.Error) {
	c.JSON(status, gin.H{"error": aerr.ToPayload()})
}

func statusForKind(k actorerr.Kind) int {
	switch k {
	case actorerr.KindSchema, actorerr.KindUnknownID:
		return http.StatusBadRequest
	case actorerr.KindRouting:
		return http.StatusNotFound
	case actorerr.KindStorageFull:
		return http.StatusServiceUnavailable
	case actorerr.KindTimeout, actorerr.KindAckTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleAsk executes a synchronous ask addressed to an actor this node
// hosts and returns its result (or a normalized error) inline.
func (r *Receiver) handleAsk(c *gin.Context) {
	var env incomingEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		writeError(c, http.StatusBadRequest, actorerr.Schema("malformed ask envelope", err))
		return
	}

	result, err := r.dispatch.HandleAsk(env.toMessage())
	if err != nil {
		var aerr *actorerr.Error
		if !errors.As(err, &aerr) {
			aerr = actorerr.Handler("ask failed", err)
		}
		writeError(c, statusForKind(aerr.Kind()), aerr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": result})
}

// handleNotify accepts a batch of tell/hope/ack envelopes (spec.md §6). A
// tell/hope envelope is durably recorded as INBOX via Route; the HTTP 200
// response itself functions as the delivery ack for that path — a sender
// sees its id listed in "received" only once Route has succeeded. An ack
// envelope instead drives Storage.Ack directly against this node's own
// outbox entry for that id, honoring the ack path spec.md describes rather
// than mis-routing it as a fresh message.
func (r *Receiver) handleNotify(c *gin.Context) {
	var envs []incomingEnvelope
	if err := c.ShouldBindJSON(&envs); err != nil {
		writeError(c, http.StatusBadRequest, actorerr.Schema("malformed notify batch", err))
		return
	}

	received := make([]message.ID, 0, len(envs))
	for _, env := range envs {
		if env.Kind == envelopeKindAck {
			if err := r.store.Ack(env.ID); err != nil {
				r.log.Warn().Err(err).Str("id", env.ID.String()).Msg("failed to record inbound ACK")
				continue
			}
			received = append(received, env.ID)
			continue
		}

		msg := env.toMessage()
		if err := r.dispatch.Route(msg); err != nil {
			r.log.Warn().Err(err).Str("id", msg.ID.String()).Msg("failed to record incoming message")
			continue
		}
		received = append(received, msg.ID)
	}
	c.JSON(http.StatusOK, gin.H{"received": received})
}

// healthDocument is the /health response shape.
type healthDocument struct {
	Node        string               `json:"node"`
	UptimeSec   float64              `json:"uptime_seconds"`
	URLPolicy   string               `json:"url_policy"`
	Storage     map[string]any       `json:"storage"`
	Cluster     []map[string]any     `json:"cluster"`
}

func (r *Receiver) handleHealth(c *gin.Context) {
	counters := r.store.Counters()
	nodes := r.reg.Snapshot()
	cluster := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		cluster = append(cluster, map[string]any{
			"name":    n.Name,
			"modules": n.Modules,
		})
	}

	doc := healthDocument{
		Node:      r.reg.CurrentNode().Name,
		UptimeSec: time.Since(r.startedAt).Seconds(),
		URLPolicy: registry.URLPolicy(),
		Storage: map[string]any{
			"pending_size":      counters.PendingSize,
			"done_size":         counters.DoneSize,
			"current_wal_size":  counters.CurrentWALSize,
			"num_begin_msgs":    counters.NumBeginMsgs,
			"num_send_msgs":     counters.NumSendMsgs,
			"num_pending_msgs":  counters.NumPendingMsgs,
			"num_done_msgs":     counters.NumDoneMsgs,
			"num_messages":      counters.NumMessages,
		},
		Cluster: cluster,
	}
	c.JSON(http.StatusOK, doc)
}
