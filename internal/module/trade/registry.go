package trade

import (
	"fmt"
	"sync"

	"github.com/payflow/server/internal/module/trade/channel"
)

// Registry manages the configured channel adapters. Adapters are keyed
// by platform; channel types resolve to their platform's adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[channel.PlatformType]channel.Adapter
}

// NewRegistry creates a new channel adapter registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[channel.PlatformType]channel.Adapter),
	}
}

// Register registers an adapter under its platform.
func (r *Registry) Register(a channel.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
}

// Get returns the adapter for a platform.
func (r *Registry) Get(platform channel.PlatformType) (channel.Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: platform %s", ErrChannelNotEnabled, platform)
	}
	return a, nil
}

// GetByChannel returns the adapter owning a channel type.
func (r *Registry) GetByChannel(ch channel.ChannelType) (channel.Adapter, error) {
	platform := ch.Platform()
	if platform == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidChannel, ch)
	}
	return r.Get(platform)
}

// Platforms returns all registered platform names.
func (r *Registry) Platforms() []channel.PlatformType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]channel.PlatformType, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
