package loadbalance

import (
	"math/rand/v2"

	"github.com/samber/lo"

	"mini-cmd/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to its weight.
// Weights below 1 count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, errNoInstances()
	}

	total := lo.SumBy(instances, func(v registry.ServiceInstance) int { return weight(v) })

	r := rand.IntN(total)
	for i := range instances {
		r -= weight(instances[i])
		if r < 0 {
			return &instances[i], nil
		}
	}
	return &instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return StrategyWeightedRandom
}

func weight(v registry.ServiceInstance) int {
	return max(v.Weight, 1)
}
