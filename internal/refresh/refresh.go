// Package refresh runs scheduled catalog and EPG refreshes against the
// repository so interactive reads rarely pay the upstream fetch cost.
package refresh

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Refresher is the slice of the repository the scheduler drives.
type Refresher interface {
	RefreshAll(ctx context.Context) error
}

type Scheduler struct {
	repo Refresher
	cron *cron.Cron
	spec string
}

// New builds a scheduler from a cron spec such as "0 */6 * * *".
func New(repo Refresher, spec string) *Scheduler {
	return &Scheduler{
		repo: repo,
		cron: cron.New(),
		spec: spec,
	}
}

// Start registers the cron job and begins the schedule. When onBoot is set
// an initial refresh runs immediately in the background so the catalog is
// warm before the first scheduled tick.
func (s *Scheduler) Start(ctx context.Context, onBoot bool) error {
	run := func() {
		start := time.Now()
		if err := s.repo.RefreshAll(ctx); err != nil {
			log.Printf("refresh: scheduled refresh failed: %v", err)
			return
		}
		log.Printf("refresh: completed in %s", time.Since(start).Round(time.Millisecond))
	}
	if _, err := s.cron.AddFunc(s.spec, run); err != nil {
		return err
	}
	if onBoot {
		go run()
	}
	s.cron.Start()
	log.Printf("refresh: scheduled with cron spec %q", s.spec)
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
