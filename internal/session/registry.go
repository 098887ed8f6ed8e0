package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/cagp/internal/devicestore"
	"github.com/joeblew999/cagp/internal/filter"
	"github.com/joeblew999/cagp/internal/utils"
)

// CookieName is the device id cookie.
const CookieName = "cagp_device"

const cookieMaxAge = 365 * 24 * time.Hour

type entry struct {
	session *Session
	refs    int
}

// Registry maps device ids to live sessions.
type Registry struct {
	deps    Deps
	devices *devicestore.DB

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewRegistry returns an empty registry. devices may be nil, in which case
// nothing is persisted.
func NewRegistry(deps Deps, devices *devicestore.DB) *Registry {
	return &Registry{deps: deps, devices: devices, sessions: make(map[string]*entry)}
}

// DeviceID returns the request's device id, issuing a new cookie when the
// request has none.
func DeviceID(w http.ResponseWriter, req *http.Request) string {
	if c, err := req.Cookie(CookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// ValidDeviceID reports whether id looks like an issued device id.
func ValidDeviceID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Lookup returns the live session for device without creating one.
func (r *Registry) Lookup(device string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[device]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// get returns the entry for device, creating it if needed. A new session
// starts from the device's stored filters when cookie consent was given.
// r.mu must be held.
func (r *Registry) get(ctx context.Context, device string) *entry {
	if e, ok := r.sessions[device]; ok {
		return e
	}
	e := &entry{session: New(device, r.deps, r.storedFilters(ctx, device))}
	r.sessions[device] = e
	return e
}

func (r *Registry) storedFilters(ctx context.Context, device string) filter.State {
	if r.devices == nil {
		return nil
	}
	st, ok, err := r.devices.LoadFilters(ctx, device)
	if err != nil {
		utils.Log.WithField("device", device).Warnf("load filters: %v", err)
		return nil
	}
	if !ok {
		return nil
	}
	return st
}

// Acquire returns the session for device and marks it in use until the
// returned release func is called. The last release persists the filter
// state (with consent) and drops the session.
func (r *Registry) Acquire(ctx context.Context, device string) (*Session, func()) {
	r.mu.Lock()
	e := r.get(ctx, device)
	e.refs++
	r.mu.Unlock()

	var once sync.Once
	return e.session, func() {
		once.Do(func() { r.release(device) })
	}
}

func (r *Registry) release(device string) {
	r.mu.Lock()
	e, ok := r.sessions[device]
	if !ok {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	// Still registered while saving: a concurrent Acquire either reuses
	// this session or reads what was just saved.
	r.persist(e.session)
	delete(r.sessions, device)
	r.mu.Unlock()
}

func (r *Registry) persist(s *Session) {
	if r.devices == nil {
		return
	}
	err := r.devices.SaveFilters(context.Background(), s.ID, s.Filters.State())
	switch {
	case errors.Is(err, devicestore.ErrNoConsent):
	case err != nil:
		utils.Log.WithField("device", s.ID).Warnf("save filters: %v", err)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
