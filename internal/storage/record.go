package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/actorway/actorway/internal/message"
)

// RecordKind tags what a log record represents. Reading the records for a
// given id in file order and feeding each Kind through the state machine
// below must always yield a valid transition sequence (storage invariant
// I4).
type RecordKind byte

const (
	KindBegin RecordKind = iota + 1
	KindSend
	KindAck
	KindDone
	KindError
	KindExpire
)

func (k RecordKind) String() string {
	switch k {
	case KindBegin:
		return "BEGIN"
	case KindSend:
		return "SEND"
	case KindAck:
		return "ACK"
	case KindDone:
		return "DONE"
	case KindError:
		return "ERROR"
	case KindExpire:
		return "EXPIRE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(k))
	}
}

// Record is one decoded log entry.
type Record struct {
	Kind    RecordKind
	ID      message.ID
	Msg     *message.Message  // present for KindBegin
	Result  map[string]any    // present for KindDone
	Error   *message.ErrorInfo // present for KindError
}

// recordPayload is the JSON shape written between the length prefix and the
// CRC32 trailer. The wire format decision (JSON, not a bespoke binary
// encoding) is documented in SPEC_FULL.md §6.
type recordPayload struct {
	ID     message.ID          `json:"id"`
	Msg    *message.Message    `json:"msg,omitempty"`
	Result map[string]any      `json:"result,omitempty"`
	Error  *message.ErrorInfo  `json:"error,omitempty"`
}

// encodeRecord lays out: 4-byte LE length | 1-byte kind | JSON payload |
// 4-byte LE CRC32 of (kind byte + payload). Length covers kind+payload+crc.
func encodeRecord(rec Record) ([]byte, error) {
	payload, err := json.Marshal(recordPayload{
		ID:     rec.ID,
		Msg:    rec.Msg,
		Result: rec.Result,
		Error:  rec.Error,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: encode record: %w", err)
	}

	body := make([]byte, 1+len(payload))
	body[0] = byte(rec.Kind)
	copy(body[1:], payload)

	checksum := crc32.ChecksumIEEE(body)

	buf := make([]byte, 4+len(body)+4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(body)+4))
	copy(buf[4:], body)
	binary.LittleEndian.PutUint32(buf[4+len(body):], checksum)
	return buf, nil
}

// decodeRecord parses one frame already stripped of its length prefix
// (body = kind byte + JSON payload + CRC32 trailer). It verifies the
// checksum before trusting the payload.
func decodeRecord(body []byte) (Record, error) {
	if len(body) < 1+4 {
		return Record{}, fmt.Errorf("storage: record too short (%d bytes)", len(body))
	}
	payloadAndKind := body[:len(body)-4]
	wantChecksum := binary.LittleEndian.Uint32(body[len(body)-4:])
	gotChecksum := crc32.ChecksumIEEE(payloadAndKind)
	if wantChecksum != gotChecksum {
		return Record{}, fmt.Errorf("storage: checksum mismatch (want %x got %x)", wantChecksum, gotChecksum)
	}

	kind := RecordKind(payloadAndKind[0])
	var p recordPayload
	if err := json.Unmarshal(payloadAndKind[1:], &p); err != nil {
		return Record{}, fmt.Errorf("storage: decode payload: %w", err)
	}
	return Record{Kind: kind, ID: p.ID, Msg: p.Msg, Result: p.Result, Error: p.Error}, nil
}

// readFrame reads one length-prefixed frame from r. It returns io.EOF when
// no more complete frames remain, and a distinguishable error
// (errTruncatedFrame) when a partial trailing frame is found — the caller
// discards it rather than treating it as corruption, per the "partially
// written tail record must be discarded on load" rule.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	n, err := io.ReadFull(r, lenBuf[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil || n < 4 {
		return nil, errTruncatedFrame
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length == 0 || length > maxRecordSize {
		return nil, errTruncatedFrame
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, errTruncatedFrame
	}
	return body, nil
}

const maxRecordSize = 64 << 20 // 64MiB guards against a corrupt length prefix reading the rest of the file as one "record"

var errTruncatedFrame = fmt.Errorf("storage: truncated trailing record")
