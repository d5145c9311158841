// Package scheduler runs background maintenance jobs on cron schedules and on demand.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/fundalloc/internal/events"
)

var (
	// ErrUnknownJob is returned when triggering a job that was never registered
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when a job is triggered while it is still running
	ErrJobRunning = errors.New("job already running")
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Publisher receives job completion events
type Publisher interface {
	Publish(data events.EventData)
}

// JobStatus describes a registered job
type JobStatus struct {
	Name         string     `json:"name"`
	Schedule     string     `json:"schedule"`
	Running      bool       `json:"running"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	LastDuration int64      `json:"last_duration_ms"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}

type entry struct {
	job      Job
	schedule string
	cronID   cron.EntryID

	mu           sync.Mutex
	running      bool
	lastRun      time.Time
	lastError    string
	lastDuration time.Duration
}

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	events Publisher

	mu   sync.RWMutex
	jobs map[string]*entry

	// triggered tracks runs started by Trigger, which cron does not know about
	triggered sync.WaitGroup

	log zerolog.Logger
}

// New creates a new scheduler. events may be nil.
func New(events Publisher, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		events: events,
		jobs:   make(map[string]*entry),
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Jobs())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs, scheduled or triggered
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.triggered.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 0 3 * * *"   - 03:00 every day
//   - "@hourly"       - Every hour
//   - "@every 30s"    - Every 30 seconds
//
// An empty schedule registers the job for manual runs only.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name()]; exists {
		return fmt.Errorf("job %s already registered", job.Name())
	}

	e := &entry{job: job, schedule: schedule}
	if schedule != "" {
		id, err := s.cron.AddFunc(schedule, func() {
			if err := s.execute(e); err != nil && !errors.Is(err, ErrJobRunning) {
				s.log.Error().Err(err).Str("job", job.Name()).Msg("Job failed")
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", schedule, job.Name(), err)
		}
		e.cronID = id
	}
	s.jobs[job.Name()] = e

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule) and waits for it
func (s *Scheduler) RunNow(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}

	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.execute(e)
}

// Trigger starts a registered job in the background. Unknown or running jobs
// are rejected before anything starts.
func (s *Scheduler) Trigger(name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if !e.claim() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	s.log.Info().Str("job", name).Msg("Job triggered")
	s.triggered.Add(1)
	go func() {
		defer s.triggered.Done()
		if err := s.run(e); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("Job failed")
		}
	}()
	return nil
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return e, nil
}

// Jobs returns the status of every registered job, sorted by name
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for name, e := range s.jobs {
		e.mu.Lock()
		st := JobStatus{
			Name:         name,
			Schedule:     e.schedule,
			Running:      e.running,
			LastError:    e.lastError,
			LastDuration: e.lastDuration.Milliseconds(),
		}
		if !e.lastRun.IsZero() {
			last := e.lastRun
			st.LastRun = &last
		}
		e.mu.Unlock()

		if e.schedule != "" {
			if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
				st.NextRun = &next
			}
		}
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// claim marks the entry running. It reports false if it already was.
func (e *entry) claim() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return false
	}
	e.running = true
	return true
}

// execute runs a job unless it is already running, then records and publishes the outcome.
func (s *Scheduler) execute(e *entry) error {
	if !e.claim() {
		s.log.Warn().Str("job", e.job.Name()).Msg("Job still running, skipping")
		return fmt.Errorf("%w: %s", ErrJobRunning, e.job.Name())
	}
	return s.run(e)
}

// run executes a claimed entry
func (s *Scheduler) run(e *entry) error {
	s.log.Debug().Str("job", e.job.Name()).Msg("Running job")
	start := time.Now()
	err := runSafely(e.job)
	duration := time.Since(start)

	e.mu.Lock()
	e.running = false
	e.lastRun = start.UTC()
	e.lastDuration = duration
	e.lastError = ""
	if err != nil {
		e.lastError = err.Error()
	}
	e.mu.Unlock()

	if err == nil {
		s.log.Debug().Str("job", e.job.Name()).Dur("duration", duration).Msg("Job completed")
	}

	if s.events != nil {
		data := &events.JobCompletedData{Job: e.job.Name(), DurationMs: duration.Milliseconds()}
		if err != nil {
			data.Error = err.Error()
		}
		s.events.Publish(data)
	}

	return err
}

func runSafely(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run()
}
