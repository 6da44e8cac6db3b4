package gateway

import (
	"fmt"
	"sort"
	"sync"

	"github.com/paygate/server/internal/model"
	"github.com/paygate/server/internal/port/outbound"
)

// Registry holds the gateways the server can talk to.
type Registry struct {
	mu       sync.RWMutex
	gateways map[model.GatewayType]outbound.GatewayPort
}

// NewRegistry creates a registry with the given gateways.
func NewRegistry(gateways ...outbound.GatewayPort) (*Registry, error) {
	r := &Registry{gateways: make(map[model.GatewayType]outbound.GatewayPort)}
	for _, g := range gateways {
		if err := r.Register(g); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a gateway. Registering the same type twice is an error.
func (r *Registry) Register(g outbound.GatewayPort) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gateways[g.Type()]; ok {
		return fmt.Errorf("gateway %q already registered", g.Type())
	}
	r.gateways[g.Type()] = g
	return nil
}

// Get returns a gateway by type.
func (r *Registry) Get(gateway model.GatewayType) (outbound.GatewayPort, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gateways[gateway]
	return g, ok
}

// All returns every registered gateway ordered by type.
func (r *Registry) All() []outbound.GatewayPort {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]outbound.GatewayPort, 0, len(r.gateways))
	for _, g := range r.gateways {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

var _ outbound.GatewayRegistryPort = (*Registry)(nil)
