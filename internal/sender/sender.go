// Package sender owns outbound delivery: a fixed worker pool posts
// tell/hope envelopes to remote peers over HTTP, retries on failure with
// exponential backoff, and applies ACKs back to storage. Ask is delivered
// separately, synchronously, with no retry.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/actorlog"
	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/registry"
	"github.com/actorway/actorway/internal/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// envelope is the wire shape POSTed to a peer's /notify or /ask endpoint,
// matching spec.md §6's field list, plus Kind to distinguish a notify
// batch's tell/hope message envelopes from its ack envelopes (see
// receiver.incomingEnvelope, which mirrors this type field-for-field).
type envelope struct {
	ID         message.ID       `json:"id"`
	Src        string           `json:"src"`
	Dst        string           `json:"dst"`
	DstNode    string           `json:"dst_node,omitempty"`
	Content    map[string]any   `json:"content"`
	IsAsk      bool             `json:"is_ask,omitempty"`
	RequireAck bool             `json:"require_ack,omitempty"`
	ParentID   message.ID       `json:"parent_id,omitempty"`
	ExpireAt   *message.UnixTime `json:"expire_at,omitempty"`
	RetryCount int              `json:"retry_count,omitempty"`
	Kind       string           `json:"kind,omitempty"`
}

func toEnvelope(msg message.Message) envelope {
	return envelope{
		ID: msg.ID, Src: msg.Src, Dst: msg.Dst, DstNode: msg.DstNode,
		Content: msg.Content, IsAsk: msg.IsAsk, RequireAck: msg.RequireAck,
		ParentID: msg.ParentID, ExpireAt: msg.ExpireAt, RetryCount: msg.RetryCount,
	}
}

type notifyResponse struct {
	Received []message.ID `json:"received"`
}

type askResponse struct {
	Content map[string]any       `json:"content"`
	Error   *message.ErrorInfo   `json:"error"`
}

// Sender is the outbound delivery engine: Submit queues tell/hope
// envelopes for durable, retried delivery; AskSync performs a direct,
// un-retried round trip for synchronous asks.
type Sender struct {
	store      storage.Storage
	reg        *registry.View
	httpClient *http.Client
	authToken  string

	outboxCh chan message.Message
	states   *stateTable
	log      zerolog.Logger
}

// Config bundles the knobs Node wires Sender up with.
type Config struct {
	Workers      int
	QueueSize    int
	AuthToken    string
	RequestTimeout time.Duration
	MaxTrackedStates int
}

func New(store storage.Storage, reg *registry.View, cfg Config) *Sender {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxTrackedStates == 0 {
		cfg.MaxTrackedStates = 10000
	}
	return &Sender{
		store:      store,
		reg:        reg,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		authToken:  cfg.AuthToken,
		outboxCh:   make(chan message.Message, cfg.QueueSize),
		states:     newStateTable(cfg.MaxTrackedStates),
		log:        actorlog.New("sender"),
	}
}

// Start queues every OUTBOX entry already in storage, then launches the
// fixed worker pool; it returns once ctx is cancelled.
func (s *Sender) Start(ctx context.Context, workers int) {
	entries, err := s.store.OutboxIter()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to seed outbox from storage")
	}
	for _, e := range entries {
		s.states.markSending(e.ID)
		select {
		case s.outboxCh <- e.Msg:
		default:
			s.states.markFailed(e.ID)
		}
	}

	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			s.worker(ctx)
			done <- struct{}{}
		}()
	}
	for i := 0; i < workers; i++ {
		<-done
	}
}

func (s *Sender) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.outboxCh:
			s.deliverOnce(msg)
		}
	}
}

// Submit durably records msg and queues it for delivery. Called for every
// remote tell/hope.
func (s *Sender) Submit(msg message.Message) error {
	if err := s.store.Begin(msg); err != nil {
		return err
	}
	if err := s.store.Send(msg.ID); err != nil {
		return err
	}
	s.states.markSending(msg.ID)
	select {
	case s.outboxCh <- msg:
	default:
		// Pool is saturated; the monitor's sweep will pick this entry up
		// from OutboxIter on its next tick and retry it.
		s.states.markFailed(msg.ID)
	}
	return nil
}

// Retry re-queues an already-BEGIN'd outbox entry, called by Monitor once
// its ack-timeout deadline passes. It re-records SEND (bumping the visible
// retry attempt) before re-queuing.
func (s *Sender) Retry(entry storage.OutboxEntry) error {
	if err := s.store.Send(entry.ID); err != nil {
		return err
	}
	s.store.IncrementRetry(entry.ID)
	s.states.markSending(entry.ID)
	select {
	case s.outboxCh <- entry.Msg:
	default:
		s.states.markFailed(entry.ID)
	}
	return nil
}

// NextBackoff returns how long to wait before the next retry attempt for
// retryCount failures so far, per the exponential-backoff-with-jitter
// schedule spec.md §4.5 calls for.
func NextBackoff(retryCount int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.3
	b.Reset()
	var d time.Duration
	for i := 0; i <= retryCount; i++ {
		d = b.NextBackOff()
	}
	return d
}

func (s *Sender) deliverOnce(msg message.Message) {
	url, err := s.targetURL(msg)
	if err != nil {
		s.log.Warn().Err(err).Str("id", msg.ID.String()).Msg("cannot resolve target url")
		s.states.markFailed(msg.ID)
		return
	}

	body, err := json.Marshal([]envelope{toEnvelope(msg)})
	if err != nil {
		s.log.Error().Err(err).Msg("encode envelope")
		return
	}

	req, err := http.NewRequest(http.MethodPost, url+"/notify", bytes.NewReader(body))
	if err != nil {
		s.states.markFailed(msg.ID)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Debug().Err(err).Str("id", msg.ID.String()).Msg("delivery attempt failed")
		s.states.markFailed(msg.ID)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.states.markFailed(msg.ID)
		return
	}

	var parsed notifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		s.states.markFailed(msg.ID)
		return
	}
	for _, id := range parsed.Received {
		if id == msg.ID {
			if err := s.store.Ack(msg.ID); err != nil {
				s.log.Warn().Err(err).Msg("failed to record ACK")
			}
			s.states.markAcked(msg.ID)
			return
		}
	}
	s.states.markFailed(msg.ID)
}

// AskSync performs a direct, synchronous HTTP round trip to the remote
// peer's /ask endpoint. It is never retried: the caller (executor.Ask)
// owns the timeout and surfaces a Timeout error if ctx expires first.
func (s *Sender) AskSync(ctx context.Context, msg message.Message, timeout time.Duration) (map[string]any, error) {
	target, ok := s.reg.Lookup(msg.DstModule())
	if !ok {
		return nil, actorerr.Routing(fmt.Sprintf("no owner known for module %q", msg.DstModule()))
	}
	url, err := s.reg.ChooseURL(target)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(toEnvelope(msg))
	if err != nil {
		return nil, fmt.Errorf("sender: encode ask envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/ask", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sender: build ask request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, actorerr.Transport("ask request failed", err).WithActor(msg.Dst)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, actorerr.Transport("reading ask response", err)
	}

	var parsed askResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, actorerr.Transport("decoding ask response", err)
	}
	if parsed.Error != nil {
		return nil, &actorerr.Error{K: actorerr.Kind(parsed.Error.Kind), Message: parsed.Error.Message, Actor: parsed.Error.Actor, ID: msg.ID.String()}
	}
	return parsed.Content, nil
}

func (s *Sender) targetURL(msg message.Message) (string, error) {
	target, ok := s.reg.Lookup(msg.DstModule())
	if !ok {
		return "", actorerr.Routing(fmt.Sprintf("no owner known for module %q", msg.DstModule()))
	}
	return s.reg.ChooseURL(target)
}
