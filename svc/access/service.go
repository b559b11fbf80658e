// Package access wires the gating engine together: clock, storage,
// entitlement state, daily quota tracking, promo redemption, and the access
// gate, behind one explicitly constructed instance with a start/teardown
// lifecycle. The embedding app builds one Service per signed-in user at
// startup and closes it on logout, so tests can run isolated instances.
package access

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitchside/gatekit/pkg/clock"
	"github.com/pitchside/gatekit/pkg/entitlement"
	"github.com/pitchside/gatekit/pkg/environment"
	"github.com/pitchside/gatekit/pkg/gate"
	"github.com/pitchside/gatekit/pkg/kvstore"
	"github.com/pitchside/gatekit/pkg/logger"
	"github.com/pitchside/gatekit/pkg/promo"
	"github.com/pitchside/gatekit/pkg/quota"
	"github.com/pitchside/gatekit/pkg/tier"
)

var (
	// ErrNotStarted indicates a promo operation before Start completed.
	ErrNotStarted = errors.New("access: service not started")

	// ErrAlreadyStarted indicates a second Start call.
	ErrAlreadyStarted = errors.New("access: service already started")
)

// Service is the engine facade consumed by the UI layer.
type Service struct {
	cfg    Config
	env    environment.Environment
	userID uuid.UUID
	log    *slog.Logger

	store   kvstore.Store
	clock   clock.Clock
	ent     *entitlement.Service
	quota   *quota.Tracker
	gate    *gate.Gate
	catalog promo.Source
	remote  promo.Source

	mu       sync.RWMutex
	started  bool
	registry *promo.Registry

	stopOnce sync.Once
	stop     chan struct{}
	loopDone chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStore overrides the default in-memory store, e.g. with the
// redis-backed one for server-side deployments.
func WithStore(store kvstore.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithClock overrides the system clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Service) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithCatalogSource overrides the promo catalog source derived from config.
func WithCatalogSource(src promo.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.catalog = src
		}
	}
}

// WithRemoteSource overrides the remote refresh source derived from config.
func WithRemoteSource(src promo.Source) Option {
	return func(s *Service) {
		if src != nil {
			s.remote = src
		}
	}
}

// New assembles a Service for one user. No I/O happens here; call Start to
// load persisted state. Gate queries before Start resolve to Loading.
func New(cfg Config, userID uuid.UUID, opts ...Option) *Service {
	env := environment.Parse(cfg.Environment)

	s := &Service{
		cfg:    cfg,
		env:    env,
		userID: userID,
		store:  kvstore.NewMemoryStore(),
		clock:  clock.System{},
		stop:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		s.log = logger.New(logger.WithEnvironment(env, cfg.ServiceName))
	}
	s.log = s.log.With(logger.UserID(userID))

	if s.catalog == nil {
		if cfg.PromoCatalogPath != "" {
			s.catalog = promo.NewFileSource(cfg.PromoCatalogPath)
		} else {
			s.catalog = promo.NewInMemSource(nil)
		}
	}
	if s.remote == nil && cfg.PromoCatalogURL != "" {
		s.remote = promo.NewHTTPSource(cfg.PromoCatalogURL,
			promo.WithTimeout(cfg.PromoRemoteTimeout))
	}

	s.ent = entitlement.NewService(s.store, s.clock,
		entitlement.WithLogger(s.log))
	s.quota = quota.NewTracker(s.store, s.clock,
		quota.WithLogger(s.log))
	s.gate = gate.New(s.ent, s.quota,
		gate.WithEnvironment(env),
		gate.WithLogger(s.log))

	return s
}

// Start loads the entitlement record and promo catalog, then begins the
// periodic catalog refresh loop if configured. An entitlement storage
// failure is not fatal: the state degrades to free defaults and the error
// is logged inside the load path.
func (s *Service) Start(ctx context.Context) error {
	// Claim the started flag before any I/O so a concurrent Start fails
	// instead of overwriting this call's registry.
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	if err := s.ent.Load(ctx); err != nil {
		s.log.WarnContext(ctx, "starting with degraded entitlement state",
			logger.Error(err))
	}

	registryOpts := []promo.Option{
		promo.WithLogger(s.log),
		promo.WithStaleAfter(s.cfg.PromoStaleAfter),
		promo.WithRefreshTimeout(s.cfg.PromoRemoteTimeout),
	}
	if s.remote != nil {
		registryOpts = append(registryOpts, promo.WithRemoteSource(s.remote))
	}

	registry, err := promo.NewRegistry(ctx, s.catalog, s.store, s.ent, s.clock, registryOpts...)
	if err != nil {
		// Release the claim so a later Start can retry.
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.registry = registry
	s.mu.Unlock()

	if s.remote != nil && s.cfg.PromoRefreshInterval > 0 {
		s.loopDone = make(chan struct{})
		go s.refreshLoop(registry)
	}

	s.log.InfoContext(ctx, "access service started",
		logger.Tier(s.ent.TierLabel()))
	return nil
}

// Close stops the refresh loop. Safe to call more than once.
func (s *Service) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	if s.loopDone != nil {
		<-s.loopDone
	}
}

// refreshLoop refreshes the promo catalog on a fixed interval until Close.
func (s *Service) refreshLoop(registry *promo.Registry) {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.cfg.PromoRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PromoRemoteTimeout)
			if err := registry.Refresh(ctx); err != nil {
				s.log.Warn("periodic catalog refresh failed", logger.Error(err))
			}
			cancel()
		case <-s.stop:
			return
		}
	}
}

// Query derives the gate decision for a requirement without consuming quota.
func (s *Service) Query(ctx context.Context, req gate.Requirement) gate.Decision {
	return s.gate.Query(ctx, req)
}

// Use derives the gate decision for an actual feature use, drawing down the
// free daily quota on the quota path.
func (s *Service) Use(ctx context.Context, req gate.Requirement) gate.Decision {
	return s.gate.Use(ctx, req)
}

// GrantTestAccess toggles the development-only gate override.
func (s *Service) GrantTestAccess(enabled bool) {
	s.gate.GrantTestAccess(enabled)
}

// Validate checks a promo code against the cached catalog.
func (s *Service) Validate(ctx context.Context, code string) (promo.Code, error) {
	registry, err := s.registryOrErr()
	if err != nil {
		return promo.Code{}, err
	}
	return registry.Validate(ctx, code)
}

// Redeem applies a promo code for the service's user.
func (s *Service) Redeem(ctx context.Context, code string) (promo.Effect, error) {
	registry, err := s.registryOrErr()
	if err != nil {
		return promo.Effect{}, err
	}

	if _, loaded := s.ent.Get(); !loaded {
		return promo.Effect{}, entitlement.ErrNotLoaded
	}

	return registry.Redeem(ctx, code, s.userID)
}

// Entitlement returns the cached entitlement record and whether the initial
// load has completed.
func (s *Service) Entitlement() (tier.Entitlement, bool) {
	return s.ent.Get()
}

// TierLabel returns the effective tier's display name, e.g. "Premium".
func (s *Service) TierLabel() string {
	return s.ent.TierLabel()
}

// Reset clears the user's entitlement on logout.
func (s *Service) Reset(ctx context.Context) error {
	return s.ent.Reset(ctx)
}

func (s *Service) registryOrErr() (*promo.Registry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.registry == nil {
		return nil, ErrNotStarted
	}
	return s.registry, nil
}
