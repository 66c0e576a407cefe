package registry

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/code19m/errx"
	"github.com/samber/lo"
)

// MemoryRegistry keeps instances in process memory. TTLs are ignored.
type MemoryRegistry struct {
	mu        sync.RWMutex
	instances map[string]ServiceInstance // instanceKey → instance
}

// NewMemoryRegistry creates an empty in-process registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{instances: make(map[string]ServiceInstance)}
}

func (r *MemoryRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[instanceKey(serviceName, instance.Addr)] = instance
	return nil
}

func (r *MemoryRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := instanceKey(serviceName, addr)
	if _, ok := r.instances[key]; !ok {
		return errx.New("instance is not registered", errx.WithCode(CodeNotRegistered), errx.WithDetails(errx.D{
			"service": serviceName,
			"addr":    addr,
		}))
	}
	delete(r.instances, key)
	return nil
}

// Discover returns the service's instances ordered by key.
func (r *MemoryRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prefix := servicePrefix(serviceName)
	keys := lo.Filter(lo.Keys(r.instances), func(k string, _ int) bool {
		return strings.HasPrefix(k, prefix)
	})
	slices.Sort(keys)

	return lo.Map(keys, func(k string, _ int) ServiceInstance {
		return r.instances[k]
	}), nil
}

func (r *MemoryRegistry) Close() error { return nil }
