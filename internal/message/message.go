package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UnixTime wraps time.Time so it marshals as the bare unix-seconds integer
// spec.md §6 specifies for expire_at, instead of encoding/json's default
// RFC3339 string — a spec-conformant peer sends and expects an integer.
type UnixTime time.Time

// NewUnixTime returns a *UnixTime wrapping t, for call sites that only have
// a time.Time in hand (tests, conversions from *time.Time elsewhere).
func NewUnixTime(t time.Time) *UnixTime {
	u := UnixTime(t)
	return &u
}

func (t UnixTime) Time() time.Time { return time.Time(t) }

func (t UnixTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(time.Time(t).Unix(), 10)), nil
}

func (t *UnixTime) UnmarshalJSON(data []byte) error {
	sec, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("message: expire_at must be unix seconds: %w", err)
	}
	*t = UnixTime(time.Unix(sec, 0).UTC())
	return nil
}

// Message is one unit of work flowing through a node: a request from one
// actor to another, optionally expecting a reply (IsAsk) and optionally
// requiring durable at-least-once delivery (RequireAck).
type Message struct {
	ID         ID             `json:"id"`
	Src        string         `json:"src"`
	Dst        string         `json:"dst"`
	DstNode    string         `json:"dst_node,omitempty"`
	Content    map[string]any `json:"content"`
	IsAsk      bool           `json:"is_ask,omitempty"`
	RequireAck bool           `json:"require_ack,omitempty"`
	ParentID   ID             `json:"parent_id,omitempty"`
	ExpireAt   *UnixTime      `json:"expire_at,omitempty"`
	RetryCount int            `json:"retry_count,omitempty"`

	// Seq is assigned by Storage.Begin and is authoritative only once the
	// BEGIN record carrying it has been durably written.
	Seq uint64 `json:"-"`
}

// Module returns the prefix of an actor name before the first '.'.
//
// "worker.ping" -> "worker". A name with no '.' has no module and Module
// returns the empty string, which never matches a registered module.
func Module(actorName string) string {
	i := strings.IndexByte(actorName, '.')
	if i < 0 {
		return ""
	}
	return actorName[:i]
}

// DstModule is a convenience wrapper over Module(msg.Dst).
func (m Message) DstModule() string { return Module(m.Dst) }

// IsExpired reports whether m's deadline, if any, has passed as of now.
func (m Message) IsExpired(now time.Time) bool {
	return m.ExpireAt != nil && now.After(m.ExpireAt.Time())
}

// IsAskResponse reports whether m is carrying the result of an ask back to
// its originator (it has a parent to resolve rather than a fresh owner to
// route to).
func (m Message) IsAskResponse() bool {
	return !m.ParentID.IsZero()
}

// ErrorInfo is the normalized shape of a terminal error recorded against a
// message and surfaced to an ask caller.
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Actor   string `json:"actor,omitempty"`
}
