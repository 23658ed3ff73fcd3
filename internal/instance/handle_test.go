package instance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

type fakeConn struct {
	mu           sync.Mutex
	loggedIn     bool
	disconnected bool
	checkFn      func(ctx context.Context, phone string) (domain.NumberResult, error)
}

func (c *fakeConn) IsLoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

func (c *fakeConn) CheckNumber(ctx context.Context, phone string) (domain.NumberResult, error) {
	if c.checkFn != nil {
		return c.checkFn(ctx, phone)
	}
	return domain.NumberResult{Exists: true, JID: phone + "@s.whatsapp.net"}, nil
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeConn) wasDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

type dialRecord struct {
	conn   *fakeConn
	events domain.ConnEvents
	err    error
}

type fakeDialer struct {
	mu     sync.Mutex
	err    error
	count  int
	dialed chan dialRecord
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan dialRecord, 16)}
}

func (d *fakeDialer) Dial(_ context.Context, _ string, events domain.ConnEvents) (domain.Conn, error) {
	d.mu.Lock()
	d.count++
	err := d.err
	d.mu.Unlock()

	rec := dialRecord{events: events, err: err}
	if err == nil {
		rec.conn = &fakeConn{loggedIn: true}
	}
	d.dialed <- rec

	if err != nil {
		return nil, err
	}
	return rec.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func waitDial(t *testing.T, d *fakeDialer) dialRecord {
	t.Helper()
	select {
	case rec := <-d.dialed:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dial")
		return dialRecord{}
	}
}

func waitEvent(t *testing.T, events <-chan Event, want EventType) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case evt := <-events:
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", want)
			return Event{}
		}
	}
}

func testHandleConfig() HandleConfig {
	return HandleConfig{
		MaxReconnectAttempts: 3,
		ReconnectDelay:       5 * time.Millisecond,
		ReconnectCooldown:    time.Hour,
		CheckTimeout:         100 * time.Millisecond,
		CheckRetryAttempts:   3,
		CheckRetryDelay:      time.Millisecond,
		BackupDelay:          5 * time.Millisecond,
	}
}

func newTestHandle(t *testing.T, dialer domain.Dialer, cfg HandleConfig) (*Handle, *CredStore, *fakeBackupStore) {
	t.Helper()
	backup := newFakeBackupStore()
	store := NewCredStore(t.TempDir(), backup)
	h := NewHandle(1, "user_1_100", dialer, store, cfg)
	t.Cleanup(h.Disconnect)
	return h, store, backup
}

func subscribeAll(h *Handle) <-chan Event {
	events := make(chan Event, 32)
	h.Subscribe(func(evt Event) { events <- evt })
	return events
}

func TestHandle_ConnectIsIdempotent(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())

	require.NoError(t, h.Connect(context.Background()))
	waitDial(t, dialer)

	// Attempt is still in flight (no open signal yet); further connects
	// must not dial again.
	require.NoError(t, h.Connect(context.Background()))
	require.NoError(t, h.Connect(context.Background()))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, domain.StatusConnecting, h.Status())
}

func TestHandle_OpenTransitionsToConnected(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)

	rec.events.Open()
	waitEvent(t, events, EventConnected)

	assert.True(t, h.IsConnected())
	assert.Equal(t, domain.StatusConnected, h.Status())

	// Once connected, another connect is still a no-op.
	require.NoError(t, h.Connect(context.Background()))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestHandle_BackupRunsAfterOpen(t *testing.T) {
	dialer := newFakeDialer()
	h, store, backup := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	writeCredentialFile(t, store, h.AuthPath(), []byte("fresh-session"))

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)
	rec.events.Open()
	waitEvent(t, events, EventConnected)

	assert.Eventually(t, func() bool {
		return string(backup.blobs[h.ID()]) == "fresh-session"
	}, time.Second, 5*time.Millisecond)
}

func TestHandle_ReconnectBackoffCeiling(t *testing.T) {
	dialer := newFakeDialer()
	dialer.err = errors.New("no route")
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	require.NoError(t, h.Connect(context.Background()))
	waitEvent(t, events, EventMaxReconnect)

	// Initial dial plus one per allowed retry.
	assert.Equal(t, 4, dialer.dialCount())
	assert.Equal(t, domain.StatusDisconnected, h.Status())

	// Automatic retrying has paused; nothing further without the cooldown.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 4, dialer.dialCount())
}

func TestHandle_CooldownRetriesOnce(t *testing.T) {
	dialer := newFakeDialer()
	dialer.err = errors.New("no route")
	cfg := testHandleConfig()
	cfg.MaxReconnectAttempts = 1
	cfg.ReconnectCooldown = 20 * time.Millisecond
	h, _, _ := newTestHandle(t, dialer, cfg)
	events := subscribeAll(h)

	require.NoError(t, h.Connect(context.Background()))
	waitEvent(t, events, EventMaxReconnect)
	first := dialer.dialCount()

	// After the cooldown the counter resets and a fresh cycle starts.
	waitEvent(t, events, EventMaxReconnect)
	assert.Greater(t, dialer.dialCount(), first)
}

func TestHandle_InvalidCredentialsPurgeAndRetry(t *testing.T) {
	dialer := newFakeDialer()
	h, store, _ := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	writeCredentialFile(t, store, h.AuthPath(), []byte("rejected"))

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)
	rec.events.Open()
	waitEvent(t, events, EventConnected)

	rec.events.Closed(domain.CloseReasonCredentialsInvalid, errors.New("logged out"))

	// The dead credentials are wiped and a fresh dial starts.
	waitDial(t, dialer)
	assert.False(t, store.CredentialsPresent(h.AuthPath()))
}

func TestHandle_ReplacedIsTerminal(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)
	rec.events.Open()
	waitEvent(t, events, EventConnected)

	rec.events.Closed(domain.CloseReasonReplaced, errors.New("stream replaced"))
	waitEvent(t, events, EventDisconnected)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount(), "a replaced session must not reconnect")
	assert.Equal(t, domain.StatusDisconnected, h.Status())
}

func TestHandle_RecoverableCloseReconnectsSilently(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)
	rec.events.Open()
	waitEvent(t, events, EventConnected)

	rec.events.Closed(domain.CloseReasonConnectionLost, errors.New("socket closed"))
	waitDial(t, dialer)

	// No terminal event for a recoverable drop.
	select {
	case evt := <-events:
		assert.NotEqual(t, EventDisconnected, evt.Type)
	default:
	}
}

func TestHandle_DisconnectStopsPendingRetry(t *testing.T) {
	dialer := newFakeDialer()
	dialer.err = errors.New("no route")
	cfg := testHandleConfig()
	cfg.ReconnectDelay = 100 * time.Millisecond
	h, _, _ := newTestHandle(t, dialer, cfg)

	require.NoError(t, h.Connect(context.Background()))
	waitDial(t, dialer)

	h.Disconnect()

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
	assert.Equal(t, domain.StatusDisconnected, h.Status())

	// A stopped handle refuses further connects.
	err := h.Connect(context.Background())
	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestHandle_DisconnectClosesLiveConn(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)
	rec.events.Open()
	waitEvent(t, events, EventConnected)

	h.Disconnect()
	assert.True(t, rec.conn.wasDisconnected())

	// Safe to call again.
	h.Disconnect()
}

func TestHandle_CheckNumberRequiresConnection(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())

	_, err := h.CheckNumber(context.Background(), "5588999999999")
	var notConnected *domain.NotConnectedError
	assert.ErrorAs(t, err, &notConnected)
}

func TestHandle_CheckNumberRetriesTransientFailures(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)
	rec.events.Open()
	waitEvent(t, events, EventConnected)

	var calls int
	rec.conn.checkFn = func(context.Context, string) (domain.NumberResult, error) {
		calls++
		if calls < 3 {
			return domain.NumberResult{}, errors.New("transient")
		}
		return domain.NumberResult{Exists: true, JID: "5588999999999@s.whatsapp.net"}, nil
	}

	result, err := h.CheckNumber(context.Background(), "5588999999999")
	require.NoError(t, err)
	assert.True(t, result.Exists)
	assert.Equal(t, 3, calls)
}

func TestHandle_CheckNumberExhaustsRetries(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())
	events := subscribeAll(h)

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)
	rec.events.Open()
	waitEvent(t, events, EventConnected)

	var calls int
	rec.conn.checkFn = func(context.Context, string) (domain.NumberResult, error) {
		calls++
		return domain.NumberResult{}, errors.New("upstream broken")
	}

	_, err := h.CheckNumber(context.Background(), "5588999999999")
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 3, calls)
}

func TestHandle_SubscriptionClose(t *testing.T) {
	dialer := newFakeDialer()
	h, _, _ := newTestHandle(t, dialer, testHandleConfig())

	received := make(chan Event, 8)
	sub := h.Subscribe(func(evt Event) { received <- evt })
	sub.Close()
	sub.Close() // double close is fine

	require.NoError(t, h.Connect(context.Background()))
	rec := waitDial(t, dialer)
	rec.events.Open()

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, received)
}
