package loadbalancer

import "math/rand/v2"

// randomBalancer picks uniformly among healthy instances (spec §4.3).
type randomBalancer struct{}

func (randomBalancer) Pick(serviceID string, backends []*Backend) (*Backend, error) {
	healthy := healthySnapshot(backends)
	if len(healthy) == 0 {
		return nil, ErrNoHealthyInstance
	}
	b := healthy[rand.IntN(len(healthy))]
	b.incrActive()
	return b, nil
}

func (randomBalancer) Release(b *Backend) { releaseBackend(b) }
