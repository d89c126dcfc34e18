package ciprovider

import (
	"fmt"
	"sync"

	"github.com/devci-tools/buildfeatures/pkg/common"
)

// Constructor builds an Adapter from opaque provider-specific config (a
// base URL, credentials, etc.) already resolved by the caller.
type Constructor func(cfg map[string]string) (Adapter, error)

var (
	mu       sync.RWMutex
	registry = map[common.ProviderKind]Constructor{}
)

// Register associates a ProviderKind with a constructor. Adapter packages
// call this from an init() func, mirroring the registry-of-constructors
// pattern used to wire concrete transports elsewhere in the pipeline.
func Register(kind common.ProviderKind, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[kind] = ctor
}

// New builds the Adapter registered for kind. Returns an error if no
// adapter package registered that kind (e.g. it was never imported for its
// side effect).
func New(kind common.ProviderKind, cfg map[string]string) (Adapter, error) {
	mu.RLock()
	ctor, ok := registry[kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("ciprovider: no adapter registered for %s", kind)
	}
	return ctor(cfg)
}

// Registered reports which provider kinds currently have a registered
// constructor, primarily for tests and startup diagnostics.
func Registered() []common.ProviderKind {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]common.ProviderKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	return kinds
}
