package ticket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rezonia/arca-fiscal/internal/model"
	"github.com/rezonia/arca-fiscal/internal/signature"
)

// Defaults for the ticket lifecycle
const (
	DefaultSafetyMargin = 5 * time.Minute
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = time.Second
)

// Manager hands out valid access tickets, renewing them at most once at a time per service
type Manager struct {
	signer signature.Signer
	login  Login
	store  Store
	logger logrus.FieldLogger

	margin      time.Duration
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time

	ids     uniqueIDs
	flights singleflight.Group

	mu    sync.RWMutex
	cache map[model.Service]*model.AccessTicket
	// bumped by Renew; flights started under an older generation may not
	// cache or persist what they produce
	generations map[model.Service]uint64
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithSafetyMargin treats tickets expiring within margin as stale
func WithSafetyMargin(margin time.Duration) ManagerOption {
	return func(m *Manager) {
		if margin >= 0 {
			m.margin = margin
		}
	}
}

// WithRetry bounds the retries made when the authority reports an existing ticket
func WithRetry(maxAttempts int, delay time.Duration) ManagerOption {
	return func(m *Manager) {
		if maxAttempts > 0 {
			m.maxAttempts = maxAttempts
		}
		if delay >= 0 {
			m.retryDelay = delay
		}
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a ticket manager
func NewManager(signer signature.Signer, login Login, store Store, logger logrus.FieldLogger, opts ...ManagerOption) *Manager {
	m := &Manager{
		signer:      signer,
		login:       login,
		store:       store,
		logger:      logger,
		margin:      DefaultSafetyMargin,
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		now:         time.Now,
		cache:       make(map[model.Service]*model.AccessTicket),
		generations: make(map[model.Service]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns a valid ticket for service, logging in only when none is cached.
// Concurrent callers for the same service share a single login.
func (m *Manager) Get(ctx context.Context, service model.Service) (*model.AccessTicket, error) {
	if t := m.cached(service); t != nil {
		return t, nil
	}
	t, _, err := m.flight(ctx, service, func(ctx context.Context, gen uint64) (*model.AccessTicket, error) {
		if t := m.cached(service); t != nil {
			return t, nil
		}
		if t := m.loadStored(ctx, service, gen); t != nil {
			return t, nil
		}
		return m.renew(ctx, service, gen)
	})
	return t, err
}

// Renew discards any cached ticket for service and logs in again. A flight
// already running when Renew is called is waited out, never taken as the result.
func (m *Manager) Renew(ctx context.Context, service model.Service) (*model.AccessTicket, error) {
	want := m.forget(ctx, service)
	for {
		t, gen, err := m.flight(ctx, service, func(ctx context.Context, gen uint64) (*model.AccessTicket, error) {
			return m.renew(ctx, service, gen)
		})
		if err != nil {
			return nil, err
		}
		if gen >= want {
			return t, nil
		}
	}
}

// Status describes the cached ticket for service without renewing it
func (m *Manager) Status(ctx context.Context, service model.Service) model.TicketStatus {
	status := model.TicketStatus{Service: service}

	m.mu.RLock()
	t := m.cache[service]
	m.mu.RUnlock()

	if t == nil {
		raw, err := m.store.Load(ctx, service)
		if err != nil {
			return status
		}
		status.Exists = true
		parsed, err := ParseTicket(service, raw)
		if err != nil {
			return status
		}
		t = parsed
	}

	generated, expires := t.GeneratedAt, t.ExpiresAt
	status.Exists = true
	status.Valid = t.ValidAt(m.now(), m.margin)
	status.GeneratedAt = &generated
	status.ExpiresAt = &expires
	status.MaskedToken = t.MaskedToken()
	status.MaskedSignature = t.MaskedSignature()
	return status
}

type flightResult struct {
	ticket     *model.AccessTicket
	generation uint64
}

// flight runs fn once per service at a time and reports the generation the
// flight started under. The flight outlives any single caller's cancellation;
// callers stop waiting when their own ctx ends.
func (m *Manager) flight(ctx context.Context, service model.Service, fn func(context.Context, uint64) (*model.AccessTicket, error)) (*model.AccessTicket, uint64, error) {
	detached := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(string(service), func() (interface{}, error) {
		gen := m.generation(service)
		t, err := fn(detached, gen)
		if err != nil {
			return nil, err
		}
		return flightResult{ticket: t, generation: gen}, nil
	})

	select {
	case <-ctx.Done():
		return nil, 0, model.NewTicketError(service, "gave up waiting for ticket", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, 0, res.Err
		}
		r := res.Val.(flightResult)
		t := *r.ticket
		return &t, r.generation, nil
	}
}

func (m *Manager) generation(service model.Service) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generations[service]
}

func (m *Manager) cached(service model.Service) *model.AccessTicket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.cache[service]
	if !ok || !t.ValidAt(m.now(), m.margin) {
		return nil
	}
	copied := *t
	return &copied
}

// remember caches t unless a renewal superseded generation gen
func (m *Manager) remember(t *model.AccessTicket, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generations[t.Service] == gen {
		m.cache[t.Service] = t
	}
}

// forget drops the cached and stored ticket and returns the new generation
func (m *Manager) forget(ctx context.Context, service model.Service) uint64 {
	m.mu.Lock()
	delete(m.cache, service)
	m.generations[service]++
	gen := m.generations[service]
	m.mu.Unlock()

	if err := m.store.Delete(ctx, service); err != nil {
		m.logger.WithField("service", service).WithError(err).Warn("Failed to delete stored ticket")
	}
	return gen
}

// loadStored returns the durable copy if it is still valid. Unreadable or stale
// documents are treated as absent.
func (m *Manager) loadStored(ctx context.Context, service model.Service, gen uint64) *model.AccessTicket {
	log := m.logger.WithField("service", service)

	raw, err := m.store.Load(ctx, service)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.WithError(err).Warn("Failed to load stored ticket")
		}
		return nil
	}

	t, err := ParseTicket(service, raw)
	if err != nil {
		log.WithError(err).Info("Stored ticket is unreadable, renewing")
		return nil
	}
	if !t.ValidAt(m.now(), m.margin) {
		log.WithField("expiration_time", t.ExpiresAt).Info("Stored ticket is stale, renewing")
		return nil
	}

	m.remember(t, gen)
	return t
}

type renewalState int

const (
	renewalAttempt renewalState = iota
	renewalBackoff
	renewalSucceeded
	renewalFailed
)

// nextRenewalState decides what follows a login attempt
func nextRenewalState(err error, attempt, maxAttempts int) renewalState {
	switch {
	case err == nil:
		return renewalSucceeded
	case errors.Is(err, ErrAlreadyAuthenticated) && attempt < maxAttempts:
		return renewalBackoff
	default:
		return renewalFailed
	}
}

// renew logs in, retrying only while the authority reports an existing ticket.
// Every attempt signs a fresh request with a new unique id.
func (m *Manager) renew(ctx context.Context, service model.Service, gen uint64) (*model.AccessTicket, error) {
	var (
		attempt int
		raw     []byte
		err     error
	)

	state := renewalAttempt
	for {
		switch state {
		case renewalAttempt:
			attempt++
			raw, err = m.attempt(ctx, service, attempt)
			state = nextRenewalState(err, attempt, m.maxAttempts)

		case renewalBackoff:
			m.logger.WithFields(logrus.Fields{
				"service": service,
				"attempt": attempt,
				"delay":   m.retryDelay.String(),
			}).Warn("Authority already holds a valid ticket, retrying")

			timer := time.NewTimer(m.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, model.NewTicketError(service, "renewal interrupted", ctx.Err())
			case <-timer.C:
			}
			state = renewalAttempt

		case renewalSucceeded:
			return m.accept(ctx, service, raw, gen)

		case renewalFailed:
			var signErr *model.SigningError
			switch {
			case errors.As(err, &signErr):
				return nil, signErr
			case errors.Is(err, ErrAlreadyAuthenticated):
				return nil, model.NewTicketError(service, "authority keeps reporting an existing ticket, attempts exhausted", err)
			default:
				return nil, model.NewTicketError(service, "login failed", err)
			}
		}
	}
}

func (m *Manager) attempt(ctx context.Context, service model.Service, attempt int) ([]byte, error) {
	now := m.now()
	id := m.ids.next(now)

	m.logger.WithFields(logrus.Fields{
		"service":   service,
		"attempt":   attempt,
		"unique_id": id,
	}).Info("Requesting access ticket")

	request, err := buildRequest(service, id, now)
	if err != nil {
		return nil, err
	}
	signed, err := m.signer.Sign(ctx, request)
	if err != nil {
		return nil, err
	}
	return m.login.LoginCms(ctx, signed)
}

func (m *Manager) accept(ctx context.Context, service model.Service, raw []byte, gen uint64) (*model.AccessTicket, error) {
	t, err := ParseTicket(service, raw)
	if err != nil {
		return nil, model.NewTicketError(service, "invalid login response", err)
	}
	if !t.ValidAt(m.now(), m.margin) {
		return nil, model.NewTicketError(service, "issued ticket is already within the safety margin", nil)
	}

	if m.generation(service) == gen {
		if err := m.store.Save(ctx, service, raw, t.ExpiresAt); err != nil {
			m.logger.WithField("service", service).WithError(err).Warn("Failed to persist ticket")
		}
	}
	m.remember(t, gen)

	m.logger.WithFields(logrus.Fields{
		"service":         service,
		"token":           t.MaskedToken(),
		"expiration_time": t.ExpiresAt,
	}).Info("Access ticket issued")

	copied := *t
	return &copied, nil
}
