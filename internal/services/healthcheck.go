package services

import "context"

// ReadinessProbe answers whether a dependency can take traffic.
type ReadinessProbe interface {
	Ready(ctx context.Context) error
}

// HealthcheckService backs the liveness/readiness endpoints. Liveness is
// unconditional; readiness requires the broker to answer its probe.
type HealthcheckService struct {
	broker ReadinessProbe
}

func NewHealthcheckService(broker ReadinessProbe) *HealthcheckService {
	return &HealthcheckService{broker: broker}
}

func (s *HealthcheckService) Alive() bool { return true }

func (s *HealthcheckService) Ready(ctx context.Context) error {
	return s.broker.Ready(ctx)
}
