// Package scheduler hosts the single timeline of pending one-shot jobs plus
// the recurring maintenance schedules (media-group sweep, history prune).
//
// One-shot jobs are keyed by id: registering the same id again replaces the
// prior timer, so a job can never fire twice for one identity. Jobs run on
// their own timer goroutines; long deliveries do not block other timers.
package scheduler

import (
	"errors"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"planbot/pkg/logx"
)

type Service struct {
	log logx.Logger
	loc *time.Location

	mu      sync.Mutex
	c       *cron.Cron
	started bool

	// one-time timers; onceVer lets stale AfterFunc callbacks detect that
	// their id was replaced or cancelled while they were pending.
	tmu     sync.Mutex
	timers  map[string]*time.Timer
	onceVer map[string]uint64
}

func New(loc *time.Location, log logx.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		log:     log,
		loc:     loc,
		c:       cron.New(cron.WithLocation(loc)),
		timers:  map[string]*time.Timer{},
		onceVer: map[string]uint64{},
	}
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()))
}

// Stop halts the cron runner and drops all pending one-shot timers.
// In-flight jobs are not interrupted.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	ctx := s.c.Stop()
	s.mu.Unlock()
	<-ctx.Done()

	s.tmu.Lock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
		delete(s.onceVer, id)
	}
	s.tmu.Unlock()
	s.log.Info("scheduler stopped")
}

// AddEvery registers a recurring job at a fixed interval.
func (s *Service) AddEvery(name string, every time.Duration, job func()) error {
	return s.AddCron(name, "@every "+every.String(), job)
}

// AddCron registers a recurring job from a 5-field cron spec (scheduler
// timezone). Panics in jobs are recovered and logged.
func (s *Service) AddCron(name, spec string, job func()) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("name required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.c.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("recurring job panicked",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		job()
	})
	if err != nil {
		return err
	}
	s.log.Debug("recurring job registered", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// RunAt registers a one-shot job under id, replacing any pending timer with
// the same id. Instants already in the past fire immediately.
func (s *Service) RunAt(id string, at time.Time, job func()) {
	runAt := at.In(s.loc)

	s.tmu.Lock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
	ver := s.onceVer[id] + 1
	s.onceVer[id] = ver

	delay := time.Until(runAt)
	if delay < 0 {
		delay = 0
	}
	timer := time.AfterFunc(delay, func() {
		// Ignore the callback when the id was replaced or cancelled after
		// this timer was armed.
		s.tmu.Lock()
		if s.onceVer[id] != ver {
			s.tmu.Unlock()
			return
		}
		delete(s.timers, id)
		delete(s.onceVer, id)
		s.tmu.Unlock()

		defer func() {
			if r := recover(); r != nil {
				s.log.Error("one-shot job panicked",
					logx.String("id", id),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		job()
	})
	s.timers[id] = timer
	s.tmu.Unlock()

	s.log.Debug("one-shot registered", logx.String("id", id), logx.Time("at", runAt))
}

// Cancel removes a pending one-shot timer. Cancelling an unknown or
// already-fired id is a no-op and returns false.
func (s *Service) Cancel(id string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, id)
	delete(s.onceVer, id)
	return true
}

// Pending reports whether a one-shot timer is registered under id.
func (s *Service) Pending(id string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	_, ok := s.timers[id]
	return ok
}

// PendingCount returns the number of armed one-shot timers.
func (s *Service) PendingCount() int {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return len(s.timers)
}

// Location returns the scheduler timezone.
func (s *Service) Location() *time.Location { return s.loc }
