package receiver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/actorway/actorway/internal/actorerr"
	"github.com/actorway/actorway/internal/message"
	"github.com/actorway/actorway/internal/registry"
	"github.com/actorway/actorway/internal/storage"
	"github.com/stretchr/testify/require"
)

type fakeDispatch struct {
	askResult map[string]any
	askErr    error
	routed    []message.Message
	routeErr  error
}

func (f *fakeDispatch) HandleAsk(msg message.Message) (map[string]any, error) {
	return f.askResult, f.askErr
}

func (f *fakeDispatch) Route(msg message.Message) error {
	if f.routeErr != nil {
		return f.routeErr
	}
	f.routed = append(f.routed, msg)
	return nil
}

func newTestReceiver(t *testing.T, d *fakeDispatch, token string) *Receiver {
	t.Helper()
	store := storage.NewMemory(100, 100)
	reg, err := registry.New(registry.NodeSpec{Name: "a"}, nil)
	require.NoError(t, err)
	return New(store, reg, d, Config{Addr: ":0", Subpath: "", AuthToken: token})
}

func TestHandleAskSuccess(t *testing.T) {
	d := &fakeDispatch{askResult: map[string]any{"pong": true}}
	r := newTestReceiver(t, d, "")

	body, _ := json.Marshal(incomingEnvelope{ID: message.NewID(), Src: "a.caller", Dst: "worker.ping", Content: map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, true, resp["content"].(map[string]any)["pong"])
}

func TestHandleAskErrorIsNormalized(t *testing.T) {
	d := &fakeDispatch{askErr: actorerr.Routing("no owner for module")}
	r := newTestReceiver(t, d, "")

	body, _ := json.Marshal(incomingEnvelope{ID: message.NewID(), Src: "a.caller", Dst: "ghost.ping", Content: map[string]any{}})
	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp map[string]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "RoutingError", resp["error"]["kind"])
}

func TestHandleNotifyReturnsReceivedIDs(t *testing.T) {
	d := &fakeDispatch{}
	r := newTestReceiver(t, d, "")

	id1, id2 := message.NewID(), message.NewID()
	body, _ := json.Marshal([]incomingEnvelope{
		{ID: id1, Src: "a.caller", Dst: "worker.tell", Content: map[string]any{}},
		{ID: id2, Src: "a.caller", Dst: "worker.tell", Content: map[string]any{}},
	})
	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Received []message.ID `json:"received"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.ElementsMatch(t, []message.ID{id1, id2}, resp.Received)
	require.Len(t, d.routed, 2)
}

func TestHandleNotifyAckEnvelopeRecordsAck(t *testing.T) {
	d := &fakeDispatch{}
	r := newTestReceiver(t, d, "")

	msg := message.Message{ID: message.NewID(), Src: "b.worker", Dst: "a.caller", Content: map[string]any{}, RequireAck: true}
	require.NoError(t, r.store.Begin(msg))
	require.NoError(t, r.store.Send(msg.ID))

	body, _ := json.Marshal([]incomingEnvelope{{ID: msg.ID, Kind: envelopeKindAck}})
	req := httptest.NewRequest(http.MethodPost, "/notify", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Received []message.ID `json:"received"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.ElementsMatch(t, []message.ID{msg.ID}, resp.Received)
	require.Empty(t, d.routed)

	st, ok := r.store.Lookup(msg.ID)
	require.True(t, ok)
	require.Equal(t, message.StatusAcked, st.Status)
}

func TestHandleHealthReportsCounters(t *testing.T) {
	d := &fakeDispatch{}
	r := newTestReceiver(t, d, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var doc healthDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Equal(t, "a", doc.Node)
	require.Contains(t, doc.Storage, "pending_size")
}

func TestBearerAuthRejectsMissingToken(t *testing.T) {
	d := &fakeDispatch{}
	r := newTestReceiver(t, d, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/health", nil)
	req2.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	r.Engine().ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusOK, rec2.Code)
}
