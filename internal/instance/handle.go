package instance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// EventType enumerates the lifecycle events a handle emits.
type EventType string

const (
	// EventQR carries a fresh pairing challenge.
	EventQR EventType = "qr"
	// EventConnected fires when the handshake completes.
	EventConnected EventType = "connected"
	// EventDisconnected fires on a terminal close. Recoverable closes emit
	// nothing; the handle retries silently.
	EventDisconnected EventType = "disconnected"
	// EventMaxReconnect fires when the retry ceiling is exceeded and
	// automatic retrying pauses for the cooldown.
	EventMaxReconnect EventType = "max_reconnect_attempts"
)

// Event is one lifecycle notification from a handle.
type Event struct {
	Type       EventType
	InstanceID domain.InstanceID
	QR         string
	Err        error
}

// Subscription is one registered event listener. Close it to stop receiving
// events; one-shot relays must close themselves after firing so repeated
// connect calls do not leak listeners.
type Subscription struct {
	once   sync.Once
	handle *Handle
	id     int
}

// Close unregisters the subscription. Safe to call more than once, from any
// goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.handle.subMu.Lock()
		delete(s.handle.subs, s.id)
		s.handle.subMu.Unlock()
	})
}

// HandleConfig carries the supervisor tunables for one handle.
type HandleConfig struct {
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	ReconnectCooldown    time.Duration

	CheckTimeout       time.Duration
	CheckRetryAttempts int
	CheckRetryDelay    time.Duration

	BackupDelay time.Duration
}

// Handle supervises exactly one protocol connection: its state machine, its
// reconnection policy, and its credential persistence. At most one handle
// exists per instance ID within a process; the registry enforces that.
type Handle struct {
	id       domain.InstanceID
	authPath string
	dialer   domain.Dialer
	creds    *CredStore
	cfg      HandleConfig

	mu                sync.Mutex
	conn              domain.Conn
	gen               int
	connecting        bool
	connected         bool
	stopped           bool
	reconnectAttempts int
	reconnectTimer    *time.Timer
	cooldownTimer     *time.Timer
	backupTimer       *time.Timer

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

// NewHandle creates a handle bound to a credential locator. It does not
// connect.
func NewHandle(id domain.InstanceID, authPath string, dialer domain.Dialer, creds *CredStore, cfg HandleConfig) *Handle {
	return &Handle{
		id:       id,
		authPath: authPath,
		dialer:   dialer,
		creds:    creds,
		cfg:      cfg,
		subs:     make(map[int]func(Event)),
	}
}

// ID returns the instance identity the handle supervises.
func (h *Handle) ID() domain.InstanceID {
	return h.id
}

// AuthPath returns the credential locator the handle owns.
func (h *Handle) AuthPath() string {
	return h.authPath
}

// Subscribe registers a listener for lifecycle events. Listeners run on the
// protocol layer's event goroutine and must not block.
func (h *Handle) Subscribe(fn func(Event)) *Subscription {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	h.nextSub++
	id := h.nextSub
	h.subs[id] = fn
	return &Subscription{handle: h, id: id}
}

func (h *Handle) publish(evt Event) {
	evt.InstanceID = h.id

	h.subMu.Lock()
	listeners := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		listeners = append(listeners, fn)
	}
	h.subMu.Unlock()

	for _, fn := range listeners {
		fn(evt)
	}
}

// Connect starts a connection attempt. It is idempotent: a second call while
// an attempt is in flight or a connection is live is a logged no-op. Dial
// failures are never returned; they feed the reconnect scheduler, since
// connect is fire-and-retry rather than request/response.
func (h *Handle) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return domain.NewConflictError("session handle is stopped")
	}
	if h.connecting || h.connected {
		h.mu.Unlock()
		log.Info().
			Str("instance_id", h.id.String()).
			Msg("Connect ignored, attempt already in flight or session live")
		return nil
	}
	h.connecting = true
	h.mu.Unlock()

	go h.attempt(context.WithoutCancel(ctx))
	return nil
}

// attempt runs one dial. Called with connecting already set.
func (h *Handle) attempt(ctx context.Context) {
	// Missing local credentials are restored from the recovery tier when a
	// backup exists; otherwise the dial proceeds on a fresh state and the
	// protocol layer issues a new pairing QR.
	if !h.creds.CredentialsPresent(h.authPath) {
		if _, err := h.creds.Restore(ctx, h.id, h.authPath); err != nil {
			log.Warn().
				Err(err).
				Str("instance_id", h.id.String()).
				Msg("Credential restore failed, connecting with fresh state")
		}
	}

	h.mu.Lock()
	if h.stopped {
		h.connecting = false
		h.mu.Unlock()
		return
	}
	h.gen++
	gen := h.gen
	h.mu.Unlock()

	events := domain.ConnEvents{
		QR: func(code string) {
			h.publish(Event{Type: EventQR, QR: code})
		},
		Open: func() {
			h.onOpen(gen)
		},
		Closed: func(reason domain.CloseReason, err error) {
			h.onClosed(gen, reason, err)
		},
	}

	conn, err := h.dialer.Dial(ctx, h.authPath, events)
	if err != nil {
		log.Error().
			Err(err).
			Str("instance_id", h.id.String()).
			Msg("Dial failed, scheduling reconnect")
		h.mu.Lock()
		h.scheduleReconnectLocked()
		h.mu.Unlock()
		return
	}

	h.mu.Lock()
	if h.gen == gen && !h.stopped {
		h.conn = conn
	} else {
		// The handle moved on while the dial was in flight.
		conn.Disconnect()
	}
	h.mu.Unlock()
}

// onOpen handles the handshake-open signal.
func (h *Handle) onOpen(gen int) {
	h.mu.Lock()
	if h.stopped || gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.connected = true
	h.connecting = false
	h.reconnectAttempts = 0
	h.stopTimerLocked(&h.reconnectTimer)
	h.stopTimerLocked(&h.cooldownTimer)

	// Let the session stabilize before copying credentials to the recovery
	// tier.
	h.stopTimerLocked(&h.backupTimer)
	h.backupTimer = time.AfterFunc(h.cfg.BackupDelay, func() {
		h.mu.Lock()
		stale := h.stopped || gen != h.gen
		h.mu.Unlock()
		if stale {
			return
		}
		h.creds.Backup(context.Background(), h.id, h.authPath)
	})
	h.mu.Unlock()

	log.Info().Str("instance_id", h.id.String()).Msg("Session connected")
	h.publish(Event{Type: EventConnected})
}

// onClosed handles the handshake-closed signal with its classified reason.
func (h *Handle) onClosed(gen int, reason domain.CloseReason, err error) {
	h.mu.Lock()
	if h.stopped || gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.connected = false
	h.conn = nil

	log.Warn().
		Err(err).
		Str("instance_id", h.id.String()).
		Str("reason", reason.String()).
		Msg("Session closed")

	if !reason.Recoverable() {
		h.connecting = false
		h.mu.Unlock()
		h.publish(Event{Type: EventDisconnected, Err: err})
		return
	}

	if reason == domain.CloseReasonCredentialsInvalid {
		// Wipe the rejected credentials so the next dial starts a fresh
		// pairing instead of looping on a dead session.
		if purgeErr := h.creds.Purge(h.authPath); purgeErr != nil {
			log.Error().
				Err(purgeErr).
				Str("instance_id", h.id.String()).
				Msg("Failed to purge invalid credentials")
		}
	}

	h.connecting = true
	h.scheduleReconnectLocked()
	h.mu.Unlock()
}

// scheduleReconnectLocked plans the next dial. Caller holds h.mu.
func (h *Handle) scheduleReconnectLocked() {
	h.reconnectAttempts++

	if h.reconnectAttempts > h.cfg.MaxReconnectAttempts {
		h.connecting = false
		log.Warn().
			Str("instance_id", h.id.String()).
			Int("attempts", h.reconnectAttempts-1).
			Dur("cooldown", h.cfg.ReconnectCooldown).
			Msg("Reconnect ceiling reached, pausing automatic retries")

		// Per-instance cooldown: after it elapses the counter resets and one
		// more cycle is attempted.
		h.stopTimerLocked(&h.cooldownTimer)
		h.cooldownTimer = time.AfterFunc(h.cfg.ReconnectCooldown, func() {
			h.mu.Lock()
			if h.stopped || h.connecting || h.connected {
				h.mu.Unlock()
				return
			}
			h.reconnectAttempts = 0
			h.connecting = true
			h.mu.Unlock()

			log.Info().Str("instance_id", h.id.String()).Msg("Cooldown elapsed, retrying connection")
			go h.attempt(context.Background())
		})

		go h.publish(Event{Type: EventMaxReconnect})
		return
	}

	delay := h.cfg.ReconnectDelay * time.Duration(h.reconnectAttempts)
	log.Info().
		Str("instance_id", h.id.String()).
		Int("attempt", h.reconnectAttempts).
		Dur("delay", delay).
		Msg("Reconnect scheduled")

	h.stopTimerLocked(&h.reconnectTimer)
	h.reconnectTimer = time.AfterFunc(delay, func() {
		// Stale-timer guard: a handle evicted from the registry must not
		// resurrect a deleted instance.
		h.mu.Lock()
		if h.stopped || !h.connecting {
			h.mu.Unlock()
			return
		}
		h.mu.Unlock()
		h.attempt(context.Background())
	})
}

// ResetReconnects clears the attempt counter. External reset hook for the
// registry's retry policy.
func (h *Handle) ResetReconnects() {
	h.mu.Lock()
	h.reconnectAttempts = 0
	h.mu.Unlock()
}

// CheckNumber asks the live connection whether the phone exists, with a
// bounded per-attempt timeout and a small fixed retry for transient
// failures. Unlike connect, failures here propagate: the call is part of a
// synchronous user-facing request.
func (h *Handle) CheckNumber(ctx context.Context, phone string) (domain.NumberResult, error) {
	h.mu.Lock()
	conn := h.conn
	live := h.connected && !h.connecting && conn != nil
	h.mu.Unlock()

	if !live || !conn.IsLoggedIn() {
		return domain.NumberResult{}, domain.NewNotConnectedError(h.id)
	}

	var lastErr error
	for attempt := 1; attempt <= h.cfg.CheckRetryAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, h.cfg.CheckTimeout)
		result, err := conn.CheckNumber(attemptCtx, phone)
		cancel()

		if err == nil {
			return result, nil
		}
		lastErr = err

		log.Warn().
			Err(err).
			Str("instance_id", h.id.String()).
			Int("attempt", attempt).
			Msg("Existence check failed")

		if attempt < h.cfg.CheckRetryAttempts {
			select {
			case <-time.After(h.cfg.CheckRetryDelay):
			case <-ctx.Done():
				return domain.NumberResult{}, domain.NewUpstreamError("existence check cancelled", ctx.Err())
			}
		}
	}

	return domain.NumberResult{}, domain.NewUpstreamError("existence check failed after retries", lastErr)
}

// IsConnected reports whether a live, handshaken connection exists and no
// connect attempt is in flight.
func (h *Handle) IsConnected() bool {
	h.mu.Lock()
	conn := h.conn
	live := h.connected && !h.connecting && conn != nil
	h.mu.Unlock()

	return live && conn.IsLoggedIn()
}

// Status derives the live status of the handle.
func (h *Handle) Status() domain.Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.connected:
		return domain.StatusConnected
	case h.connecting:
		return domain.StatusConnecting
	default:
		return domain.StatusDisconnected
	}
}

// Disconnect gracefully closes the connection and stops all pending timers.
// Credentials survive, preserving re-login without a new pairing. Safe to
// call when already disconnected. The handle is finished afterwards; the
// registry builds a fresh one for the next connect.
func (h *Handle) Disconnect() {
	h.mu.Lock()
	h.stopped = true
	h.connecting = false
	h.connected = false
	h.stopTimerLocked(&h.reconnectTimer)
	h.stopTimerLocked(&h.cooldownTimer)
	h.stopTimerLocked(&h.backupTimer)
	conn := h.conn
	h.conn = nil
	h.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
		log.Info().Str("instance_id", h.id.String()).Msg("Session disconnected")
	}
}

// stopTimerLocked stops and clears a timer slot. Caller holds h.mu.
func (h *Handle) stopTimerLocked(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
