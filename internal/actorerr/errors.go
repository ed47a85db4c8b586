// Package actorerr holds the error taxonomy shared by every component:
// storage, executor, sender, receiver and monitor all construct and
// propagate these types rather than ad-hoc errors, so callers can branch on
// Kind() the same way regardless of which layer raised the error.
package actorerr

import "fmt"

// Kind identifies which bucket of the error taxonomy an error belongs to.
type Kind string

const (
	KindSchema         Kind = "SchemaError"
	KindHandler        Kind = "HandlerError"
	KindRouting        Kind = "RoutingError"
	KindStorageFull    Kind = "StorageFull"
	KindTransport      Kind = "TransportError"
	KindAckTimeout     Kind = "AckTimeout"
	KindRetryExhausted Kind = "RetryExhausted"
	KindCorruptLog     Kind = "CorruptLog"
	KindTimeout        Kind = "Timeout"
	KindUnknownID      Kind = "UnknownId"
)

// Error is a taxonomy-tagged error. Actor, ID and Message mirror the
// {kind, message, actor, id} shape a surfaced ask error is serialized as.
type Error struct {
	K       Kind
	Actor   string
	ID      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.K, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.K, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Kind returns the error's taxonomy bucket.
func (e *Error) Kind() Kind { return e.K }

func new(k Kind, msg string, cause error) *Error {
	return &Error{K: k, Message: msg, Cause: cause}
}

func Schema(msg string, cause error) *Error  { return new(KindSchema, msg, cause) }
func Handler(msg string, cause error) *Error { return new(KindHandler, msg, cause) }
func Routing(msg string) *Error              { return new(KindRouting, msg, nil) }
func StorageFull(msg string) *Error          { return new(KindStorageFull, msg, nil) }
func Transport(msg string, cause error) *Error {
	return new(KindTransport, msg, cause)
}
func AckTimeout(msg string) *Error     { return new(KindAckTimeout, msg, nil) }
func RetryExhausted(msg string) *Error { return new(KindRetryExhausted, msg, nil) }
func CorruptLog(msg string, cause error) *Error {
	return new(KindCorruptLog, msg, cause)
}
func Timeout(msg string) *Error   { return new(KindTimeout, msg, nil) }
func UnknownID(msg string) *Error { return new(KindUnknownID, msg, nil) }

// WithActor returns a copy of e annotated with the acting actor name.
func (e *Error) WithActor(actor string) *Error {
	c := *e
	c.Actor = actor
	return &c
}

// WithID returns a copy of e annotated with the message id.
func (e *Error) WithID(id string) *Error {
	c := *e
	c.ID = id
	return &c
}

// Payload is the wire shape a surfaced ask error is serialized as.
type Payload struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Actor   string `json:"actor,omitempty"`
	ID      string `json:"id,omitempty"`
}

// ToPayload converts e into its wire representation. Stack traces are never
// included; only the normalized kind/message/actor/id quadruple crosses the
// wire.
func (e *Error) ToPayload() Payload {
	return Payload{Kind: e.K, Message: e.Message, Actor: e.Actor, ID: e.ID}
}
