package tier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrModelLoad wraps individual asset load failures. It never escapes the
// manager; exhausted chains degrade capabilities instead.
var ErrModelLoad = errors.New("model load failed")

// Model is one loaded inference model.
type Model interface {
	Name() string
	Close() error
}

// Loader fetches and instantiates model assets.
type Loader interface {
	Load(ctx context.Context, asset Asset) (Model, error)
}

// Manager owns the loaded model set for the active tier. Initialization is
// idempotent per tier; a failed bundle degrades to the next link in the
// fallback chain rather than surfacing an error. Safe for concurrent use.
type Manager struct {
	mu            sync.Mutex
	loader        Loader
	variant       Variant
	poseAvailable bool
	logger        *log.Logger

	tier   Tier
	bundle string
	models map[string]Model
	caps   Capability
}

// NewManager builds a manager. poseAvailable is the one-time capability
// probe result and stays fixed for the manager's lifetime.
func NewManager(loader Loader, variant Variant, poseAvailable bool, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		loader:        loader,
		variant:       variant,
		poseAvailable: poseAvailable,
		logger:        logger,
		tier:          Loading,
		models:        map[string]Model{},
	}
}

// Initialize loads the model set for the tier, walking the fallback chain
// until a bundle loads completely. Re-initializing the current tier is a
// no-op. Only context cancellation is returned as an error; load failures
// degrade.
func (m *Manager) Initialize(ctx context.Context, t Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t == m.tier && (m.caps.Any() || t == Loading) {
		return nil
	}
	return m.load(ctx, t)
}

// UpdateTier switches tiers, disposing the previous model set first. An
// unchanged tier is a no-op.
func (m *Manager) UpdateTier(ctx context.Context, t Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t == m.tier {
		return nil
	}
	m.disposeLocked()
	return m.load(ctx, t)
}

func (m *Manager) load(ctx context.Context, t Tier) error {
	m.disposeLocked()
	m.tier = t

	for _, b := range chain(t, m.variant, m.poseAvailable) {
		if err := ctx.Err(); err != nil {
			return err
		}
		loaded, err := m.loadBundle(ctx, b)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			m.logger.Printf("[TierManager] bundle %s failed (%v), falling back", b.Name, err)
			continue
		}
		m.models = loaded
		m.bundle = b.Name
		m.caps = b.Grants
		m.logger.Printf("[TierManager] tier %s active with bundle %s", t, b.Name)
		return nil
	}

	if t != Loading {
		m.logger.Printf("[TierManager] tier %s has no loadable bundle, capabilities disabled", t)
	}
	return nil
}

func (m *Manager) loadBundle(ctx context.Context, b Bundle) (map[string]Model, error) {
	loaded := map[string]Model{}
	for _, asset := range b.Assets {
		mdl, err := m.loader.Load(ctx, asset)
		if err != nil {
			for _, l := range loaded {
				l.Close()
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, asset.Name, err)
		}
		loaded[asset.Name] = mdl
	}
	return loaded, nil
}

// Dispose releases every loaded model and returns to the loading tier.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposeLocked()
	m.tier = Loading
}

func (m *Manager) disposeLocked() {
	for name, mdl := range m.models {
		if err := mdl.Close(); err != nil {
			m.logger.Printf("[TierManager] closing %s: %v", name, err)
		}
	}
	m.models = map[string]Model{}
	m.bundle = ""
	m.caps = Capability{}
}

// Capabilities reports what the loaded bundle can deliver.
func (m *Manager) Capabilities() Capability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

// ActiveTier is the tier last requested.
func (m *Manager) ActiveTier() Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tier
}

// ActiveBundle is the name of the loaded bundle, "" when nothing is loaded.
func (m *Manager) ActiveBundle() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bundle
}
