package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-ledger/internal/domain"
	"token-ledger/internal/ledger"
	"token-ledger/internal/observability"
	"token-ledger/internal/principal"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetrics("test", prometheus.NewRegistry())
}

func newKey(t *testing.T) domain.Principal {
	t.Helper()
	kp, err := principal.GenerateKeypair()
	require.NoError(t, err)
	return kp.Principal()
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func waitSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Subscribers() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_StreamsLedgerEvents(t *testing.T) {
	hub := NewHub(Config{}, WithMetrics(testMetrics()))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, srv, "")
	waitSubscribers(t, hub, 1)

	alice, bob := newKey(t), newKey(t)
	l := ledger.New(ledger.WithSink(hub))
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))
	require.NoError(t, l.Transfer(alice, "GLD", alice, bob, 300))

	created := readEvent(t, conn)
	assert.Equal(t, EventTokenCreated, created.Type)
	require.NotNil(t, created.Token)
	assert.Equal(t, "GLD", created.Token.Symbol)
	assert.True(t, created.Entry.IsMint())
	assert.Equal(t, uint64(1000), created.Entry.Amount)

	transfer := readEvent(t, conn)
	assert.Equal(t, EventTransfer, transfer.Type)
	assert.Nil(t, transfer.Token)
	require.NotNil(t, transfer.Entry.From)
	assert.Equal(t, alice, *transfer.Entry.From)
	assert.Equal(t, bob, transfer.Entry.To)
	assert.Equal(t, uint64(2), transfer.Entry.Seq)
}

func TestHub_FilterByPrincipalAndSymbol(t *testing.T) {
	hub := NewHub(Config{}, WithMetrics(testMetrics()))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	alice, bob, carol := newKey(t), newKey(t), newKey(t)

	carolConn := dial(t, srv, "?principal="+carol.String())
	slvConn := dial(t, srv, "?symbol=SLV")
	waitSubscribers(t, hub, 2)

	l := ledger.New(ledger.WithSink(hub))
	require.NoError(t, l.CreateToken(alice, "Gold", "GLD", "img", 1000))
	require.NoError(t, l.Transfer(alice, "GLD", alice, bob, 300))
	require.NoError(t, l.Transfer(bob, "GLD", bob, carol, 100))
	require.NoError(t, l.CreateToken(bob, "Silver", "SLV", "img", 5))

	ev := readEvent(t, carolConn)
	assert.Equal(t, carol, ev.Entry.To)
	assert.Equal(t, uint64(3), ev.Entry.Seq)

	ev = readEvent(t, slvConn)
	assert.Equal(t, "SLV", ev.Entry.Symbol)
	assert.Equal(t, EventTokenCreated, ev.Type)
}

func TestHub_RejectsInvalidPrincipal(t *testing.T) {
	hub := NewHub(Config{}, WithMetrics(testMetrics()))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?principal=not-a-key"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	m := testMetrics()
	hub := NewHub(Config{ClientBuffer: 1}, WithMetrics(m))

	// Registered without a connection: nothing drains its buffer.
	c := hub.register(Filter{})
	require.NotNil(t, c)

	entry := domain.Entry{Symbol: "GLD", Seq: 2}
	hub.Transferred(entry)
	hub.Transferred(entry)
	hub.Transferred(entry)

	assert.Len(t, c.send, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FeedDropped))
}

func TestHub_CloseDisconnectsSubscribers(t *testing.T) {
	m := testMetrics()
	hub := NewHub(Config{}, WithMetrics(m))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv, "")
	waitSubscribers(t, hub, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FeedSubscribers))

	hub.Close()
	assert.Equal(t, 0, hub.Subscribers())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Nil(t, hub.register(Filter{}))
}

func TestFilter_Match(t *testing.T) {
	alice := domain.Principal("alice")
	mint := domain.Entry{Symbol: "GLD", Transaction: domain.Transaction{To: "alice"}}
	transfer := domain.Entry{Symbol: "GLD", Transaction: domain.Transaction{From: &alice, To: "bob"}}

	assert.True(t, Filter{}.Match(mint))
	assert.True(t, Filter{Symbol: "GLD"}.Match(transfer))
	assert.False(t, Filter{Symbol: "SLV"}.Match(transfer))
	assert.True(t, Filter{Principal: "alice"}.Match(mint))
	assert.True(t, Filter{Principal: "alice"}.Match(transfer))
	assert.True(t, Filter{Principal: "bob"}.Match(transfer))
	assert.False(t, Filter{Principal: "bob"}.Match(mint))
	assert.False(t, Filter{Symbol: "SLV", Principal: "bob"}.Match(transfer))
}
