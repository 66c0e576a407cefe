// Package loadbalance picks one server instance out of those a registry returned.
//
//   - RoundRobin:     instances with equal capacity
//   - WeightedRandom: instances with different capacity, by ServiceInstance.Weight
package loadbalance

import (
	"github.com/code19m/errx"

	"mini-cmd/registry"
)

const (
	CodeNoInstances     = "NO_INSTANCES"
	CodeUnknownStrategy = "UNKNOWN_BALANCER"

	StrategyRoundRobin     = "round_robin"
	StrategyWeightedRandom = "weighted_random"
)

// Balancer selects a target instance. Pick is called once per request and must be goroutine-safe.
type Balancer interface {
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

// New returns the balancer for a strategy name.
func New(strategy string) (Balancer, error) {
	switch strategy {
	case StrategyRoundRobin, "":
		return &RoundRobinBalancer{}, nil
	case StrategyWeightedRandom:
		return &WeightedRandomBalancer{}, nil
	}
	return nil, errx.New("unknown load balancing strategy: "+strategy,
		errx.WithCode(CodeUnknownStrategy),
		errx.WithType(errx.T_Validation),
	)
}

func errNoInstances() error {
	return errx.New("no instances available", errx.WithCode(CodeNoInstances))
}
