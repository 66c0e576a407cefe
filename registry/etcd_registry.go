// Etcd stores each instance under /mini-cmd/{ServiceName}/{Addr} with a JSON value.
// Entries are attached to a TTL lease that is kept alive while the process runs,
// so a crashed server disappears once its lease expires.

package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/code19m/errx"
	clientv3 "go.etcd.io/etcd/client/v3"

	"mini-cmd/logger"
)

const keyPrefix = "/mini-cmd/"

func servicePrefix(serviceName string) string {
	return keyPrefix + serviceName + "/"
}

func instanceKey(serviceName, addr string) string {
	return servicePrefix(serviceName) + addr
}

type registration struct {
	lease  clientv3.LeaseID
	cancel context.CancelFunc
}

// EtcdRegistry implements Registry on etcd v3.
type EtcdRegistry struct {
	client *clientv3.Client
	logger logger.Logger

	mu    sync.Mutex
	owned map[string]registration // instanceKey → lease held by this process
}

// NewEtcdRegistry connects to the configured endpoints.
func NewEtcdRegistry(cfg Config, log logger.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, errx.Wrap(err, errx.WithCode(CodeUnavailable))
	}
	return &EtcdRegistry{
		client: c,
		logger: log.Named("registry"),
		owned:  make(map[string]registration),
	}, nil
}

// Register grants a lease of ttl seconds, puts the instance under it and keeps the
// lease alive in the background until Deregister or Close.
func (r *EtcdRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return errx.Wrap(err, errx.WithCode(CodeUnavailable))
	}

	val, err := json.Marshal(instance)
	if err != nil {
		return errx.Wrap(err)
	}

	key := instanceKey(serviceName, instance.Addr)
	if _, err = r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return errx.Wrap(err, errx.WithCode(CodeUnavailable))
	}

	// The keepalive outlives ctx, which only bounds the registration itself.
	kaCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ch, err := r.client.KeepAlive(kaCtx, lease.ID)
	if err != nil {
		cancel()
		return errx.Wrap(err, errx.WithCode(CodeUnavailable))
	}

	go func() {
		for range ch {
		}
		r.logger.Debugw("lease keepalive stopped", "key", key)
	}()

	r.mu.Lock()
	if prev, ok := r.owned[key]; ok {
		prev.cancel()
	}
	r.owned[key] = registration{lease: lease.ID, cancel: cancel}
	r.mu.Unlock()

	r.logger.Infow("registered instance", "key", key, "ttl", ttl)
	return nil
}

// Deregister removes the instance. If this process registered it, the lease is revoked too.
func (r *EtcdRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	key := instanceKey(serviceName, addr)

	r.mu.Lock()
	reg, ok := r.owned[key]
	delete(r.owned, key)
	r.mu.Unlock()

	if ok {
		reg.cancel()
		if _, err := r.client.Revoke(ctx, reg.lease); err != nil {
			return errx.Wrap(err, errx.WithCode(CodeUnavailable))
		}
		r.logger.Infow("deregistered instance", "key", key)
		return nil
	}

	if _, err := r.client.Delete(ctx, key); err != nil {
		return errx.Wrap(err, errx.WithCode(CodeUnavailable))
	}
	return nil
}

// Discover returns all instances currently stored under the service prefix.
func (r *EtcdRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	resp, err := r.client.Get(ctx, servicePrefix(serviceName), clientv3.WithPrefix())
	if err != nil {
		return nil, errx.Wrap(err, errx.WithCode(CodeUnavailable))
	}

	instances := make([]ServiceInstance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance ServiceInstance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warnw("skipping malformed instance", "key", string(kv.Key), "error", err)
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Close stops all keepalives and closes the etcd client.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	for _, reg := range r.owned {
		reg.cancel()
	}
	clear(r.owned)
	r.mu.Unlock()

	return errx.Wrap(r.client.Close())
}
