package usecase

import (
	"context"
	"sync"
	"time"
)

// Probe checks one dependency; nil means healthy.
type Probe func(ctx context.Context) error

type HealthUsecase interface {
	// Check runs every probe concurrently and reports per-dependency status.
	Check(ctx context.Context) (map[string]string, bool)
}

type healthUsecase struct {
	probes  map[string]Probe
	timeout time.Duration
}

func NewHealthUsecase(probes map[string]Probe) HealthUsecase {
	return &healthUsecase{probes: probes, timeout: 3 * time.Second}
}

func (u *healthUsecase) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		status  = map[string]string{"status": "ok"}
	)
	for name, probe := range u.probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()
			err := probe(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				status[name] = "unavailable"
				healthy = false
				return
			}
			status[name] = "ok"
		}(name, probe)
	}
	wg.Wait()

	if !healthy {
		status["status"] = "degraded"
	}
	return status, healthy
}
