package services

import (
	"context"
	"fmt"
	"sort"
	"time"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService pings the stores the API cannot work without.
type HealthService struct {
	checks  map[string]Pinger
	timeout time.Duration
}

func NewHealthService(checks map[string]Pinger) *HealthService {
	return &HealthService{
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// Get returns the first failing dependency, checked in name order.
func (s *HealthService) Get(ctx context.Context) error {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.checks[name].Ping(pctx)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
