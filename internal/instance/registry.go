package instance

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// StatusSink receives lifecycle events for fan-out, e.g. to the realtime
// channel. Called after the status has been persisted.
type StatusSink func(owner domain.UserID, evt Event, status domain.Status)

type entry struct {
	handle *Handle
	owner  domain.UserID
}

// Registry owns every session handle in the process and keeps the handle map,
// the instance rows, and the credential store consistent with each other. At
// most one handle exists per instance ID.
type Registry struct {
	repo   domain.InstanceRepository
	dialer domain.Dialer
	creds  *CredStore
	cfg    HandleConfig

	mu      sync.Mutex
	entries map[domain.InstanceID]*entry

	sinkMu sync.RWMutex
	sink   StatusSink
}

// NewRegistry creates an empty registry.
func NewRegistry(repo domain.InstanceRepository, dialer domain.Dialer, creds *CredStore, cfg HandleConfig) *Registry {
	return &Registry{
		repo:    repo,
		dialer:  dialer,
		creds:   creds,
		cfg:     cfg,
		entries: make(map[domain.InstanceID]*entry),
	}
}

// OnStatusChange registers the fan-out sink for lifecycle events.
func (r *Registry) OnStatusChange(sink StatusSink) {
	r.sinkMu.Lock()
	r.sink = sink
	r.sinkMu.Unlock()
}

func (r *Registry) notify(owner domain.UserID, evt Event, status domain.Status) {
	r.sinkMu.RLock()
	sink := r.sink
	r.sinkMu.RUnlock()
	if sink != nil {
		sink(owner, evt, status)
	}
}

// CreateInstance registers a new instance row with a fresh credential
// locator. No connection is attempted.
func (r *Registry) CreateInstance(ctx context.Context, owner domain.UserID, name string) (*domain.Instance, error) {
	inst := domain.NewInstance(owner, name, domain.NewAuthPath(owner))
	if err := r.repo.Create(ctx, inst); err != nil {
		return nil, err
	}

	log.Info().
		Str("instance_id", inst.ID.String()).
		Int64("user_id", int64(owner)).
		Str("auth_path", inst.AuthPath).
		Msg("Instance created")

	return inst, nil
}

// loadEntry returns the registered entry for the instance, creating the
// handle from the stored row when none exists yet.
func (r *Registry) loadEntry(ctx context.Context, id domain.InstanceID) (*entry, error) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	inst, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok {
		return e, nil
	}

	e := &entry{
		handle: NewHandle(inst.ID, inst.AuthPath, r.dialer, r.creds, r.cfg),
		owner:  inst.UserID,
	}
	r.wireSupervision(e)
	r.entries[id] = e
	return e, nil
}

// wireSupervision attaches the permanent subscription that persists status
// transitions and fans them out.
func (r *Registry) wireSupervision(e *entry) {
	e.handle.Subscribe(func(evt Event) {
		var status domain.Status
		switch evt.Type {
		case EventConnected:
			status = domain.StatusConnected
		case EventDisconnected, EventMaxReconnect:
			status = domain.StatusDisconnected
		case EventQR:
			// Pairing in progress.
			status = domain.StatusConnecting
		default:
			return
		}

		if err := r.repo.UpdateStatus(context.Background(), evt.InstanceID, status); err != nil {
			log.Error().
				Err(err).
				Str("instance_id", evt.InstanceID.String()).
				Msg("Failed to persist instance status")
		}
		r.notify(e.owner, evt, status)
	})
}

// ConnectInstance starts (or joins) a connection attempt for an owned
// instance. relay, when non-nil, receives this request's lifecycle events:
// QR codes pass through, and the relay disposes itself on the first
// connected or terminal disconnected signal so repeated connects do not
// accumulate listeners. The returned subscription lets the caller dispose
// the relay early, e.g. when the requesting client goes away mid-pairing;
// it is nil when no relay was wired.
func (r *Registry) ConnectInstance(ctx context.Context, owner domain.UserID, id domain.InstanceID, relay func(Event)) (*Subscription, error) {
	e, err := r.ownedEntry(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	// A live session emits no further pairing events, so a relay wired now
	// would never fire and never self-dispose.
	var relaySub *Subscription
	if relay != nil && !e.handle.IsConnected() {
		relaySub = e.handle.Subscribe(func(evt Event) {
			relay(evt)
			if evt.Type == EventConnected || evt.Type == EventDisconnected || evt.Type == EventMaxReconnect {
				relaySub.Close()
			}
		})
	}

	// An explicit connect request clears any accumulated backoff, so an
	// instance that hit the reconnect ceiling can be retried right away.
	e.handle.ResetReconnects()

	if err := e.handle.Connect(ctx); err != nil {
		// A stopped handle means a disconnect raced this connect. Evict it
		// and retry once with a fresh one.
		if relaySub != nil {
			relaySub.Close()
		}
		r.evict(id, e.handle)
		e, err = r.ownedEntry(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		return nil, e.handle.Connect(ctx)
	}

	if err := r.repo.UpdateStatus(ctx, id, domain.StatusConnecting); err != nil {
		log.Warn().
			Err(err).
			Str("instance_id", id.String()).
			Msg("Failed to persist connecting status")
	}
	return relaySub, nil
}

// DisconnectInstance gracefully closes an owned instance's connection and
// evicts its handle. Credentials survive for a later re-login.
func (r *Registry) DisconnectInstance(ctx context.Context, owner domain.UserID, id domain.InstanceID) error {
	e, err := r.ownedEntry(ctx, owner, id)
	if err != nil {
		return err
	}

	e.handle.Disconnect()
	r.evict(id, e.handle)

	if err := r.repo.UpdateStatus(ctx, id, domain.StatusDisconnected); err != nil {
		return err
	}
	r.notify(owner, Event{Type: EventDisconnected, InstanceID: id}, domain.StatusDisconnected)
	return nil
}

// DeleteInstance removes an instance entirely: stop the handle, delete the
// row, purge both credential tiers. Ordering matters so a reconnect timer
// cannot resurrect a deleted instance. Cleanup failures after the row is
// gone are logged, not returned.
func (r *Registry) DeleteInstance(ctx context.Context, owner domain.UserID, id domain.InstanceID) error {
	inst, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if inst.UserID != owner {
		return domain.ErrInstanceNotOwned(id)
	}

	r.mu.Lock()
	e := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if e != nil {
		e.handle.Disconnect()
	}

	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := r.creds.Purge(inst.AuthPath); err != nil {
		log.Error().
			Err(err).
			Str("instance_id", id.String()).
			Msg("Failed to purge credentials for deleted instance")
	}

	log.Info().
		Str("instance_id", id.String()).
		Int64("user_id", int64(owner)).
		Msg("Instance deleted")
	return nil
}

// InitializeAll restores every known instance at startup. Instances with a
// local credential artifact, or one restorable from backup, are connected;
// the rest are marked disconnected and left for a fresh pairing. One
// instance failing never aborts the sweep.
func (r *Registry) InitializeAll(ctx context.Context) error {
	instances, err := r.repo.GetAll(ctx)
	if err != nil {
		return err
	}

	log.Info().Int("count", len(instances)).Msg("Initializing instances")

	for _, inst := range instances {
		if err := r.initializeOne(ctx, inst); err != nil {
			log.Error().
				Err(err).
				Str("instance_id", inst.ID.String()).
				Msg("Failed to initialize instance")
		}
	}
	return nil
}

func (r *Registry) initializeOne(ctx context.Context, inst *domain.Instance) error {
	hasCreds := r.creds.CredentialsPresent(inst.AuthPath)
	if !hasCreds {
		restored, err := r.creds.Restore(ctx, inst.ID, inst.AuthPath)
		if err != nil {
			log.Warn().
				Err(err).
				Str("instance_id", inst.ID.String()).
				Msg("Credential restore failed during initialization")
		}
		hasCreds = restored
	}

	if !hasCreds {
		if inst.Status != domain.StatusDisconnected {
			if err := r.repo.UpdateStatus(ctx, inst.ID, domain.StatusDisconnected); err != nil {
				return err
			}
		}
		log.Info().
			Str("instance_id", inst.ID.String()).
			Msg("No credentials available, instance left disconnected")
		return nil
	}

	_, err := r.ConnectInstance(ctx, inst.UserID, inst.ID, nil)
	return err
}

// DrainAll gracefully disconnects every live handle. Stored statuses are left
// untouched so the next startup reconnects them.
func (r *Registry) DrainAll() {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for id := range r.entries {
		entries = append(entries, r.entries[id])
		delete(r.entries, id)
	}
	r.mu.Unlock()

	for _, e := range entries {
		e.handle.Disconnect()
	}

	log.Info().Int("count", len(entries)).Msg("All instances drained")
}

// ConnectedHandle returns the live handle for an instance when one exists
// and has a usable connection.
func (r *Registry) ConnectedHandle(id domain.InstanceID) (*Handle, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()

	if !ok || !e.handle.IsConnected() {
		return nil, false
	}
	return e.handle, true
}

// StatusOf reconciles an instance row's stored status with the live handle
// state, writing back when they diverge.
func (r *Registry) StatusOf(ctx context.Context, inst *domain.Instance) domain.Status {
	r.mu.Lock()
	e, ok := r.entries[inst.ID]
	r.mu.Unlock()

	live := domain.StatusDisconnected
	if ok {
		live = e.handle.Status()
	}

	if live != inst.Status {
		if err := r.repo.UpdateStatus(ctx, inst.ID, live); err != nil {
			log.Warn().
				Err(err).
				Str("instance_id", inst.ID.String()).
				Msg("Failed to reconcile instance status")
		}
		inst.Status = live
	}
	return live
}

// ownedEntry resolves the entry for an instance and enforces ownership.
func (r *Registry) ownedEntry(ctx context.Context, owner domain.UserID, id domain.InstanceID) (*entry, error) {
	e, err := r.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.owner != owner {
		return nil, domain.ErrInstanceNotOwned(id)
	}
	return e, nil
}

// evict drops a handle from the map if it is still the registered one.
func (r *Registry) evict(id domain.InstanceID, h *Handle) {
	r.mu.Lock()
	if e, ok := r.entries[id]; ok && e.handle == h {
		delete(r.entries, id)
	}
	r.mu.Unlock()
}
