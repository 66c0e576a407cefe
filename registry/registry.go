// Package registry announces server instances and lets clients discover them.
package registry

import (
	"context"
	"time"
)

const (
	CodeNotRegistered = "NOT_REGISTERED"
	CodeUnavailable   = "REGISTRY_UNAVAILABLE"
)

// Config describes how a server announces itself and where the registry lives.
// Registration is disabled when Endpoints is empty.
type Config struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" default:"5s"`
	Service     string        `mapstructure:"service" validate:"required" default:"mini-cmd"`
	TTL         int64         `mapstructure:"ttl" validate:"gt=0" default:"10"`
	Weight      int           `mapstructure:"weight" validate:"gte=0" default:"1"`
	Version     string        `mapstructure:"version"`
}

// Enabled reports whether an etcd endpoint is configured.
func (c Config) Enabled() bool {
	return len(c.Endpoints) > 0
}

// ServiceInstance is one announced server.
type ServiceInstance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // Weight for load balancing
	Version string `json:"version"`
}

// Registry stores the instances of each service.
type Registry interface {
	// Register announces instance under serviceName. The entry expires ttl seconds after
	// the registry loses contact with the announcing process.
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Close() error
}
