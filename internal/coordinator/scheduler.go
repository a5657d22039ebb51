package coordinator

import (
	"sync"
	"time"

	"submesh/internal/kernel"
	"submesh/internal/logger"
	"submesh/internal/metrics"
	"submesh/internal/subsystem"
)

// Strategy selects how the Scheduler picks which subsystem gets the next
// time slice.
type Strategy string

const (
	RoundRobin Strategy = "round-robin"
	Priority   Strategy = "priority"
	LoadBased  Strategy = "load-based"
	Adaptive   Strategy = "adaptive"
)

// SchedulerConfig parameterises a Scheduler.
type SchedulerConfig struct {
	TimeSliceMs int
	Strategy    Strategy

	// AdaptiveUtilizationThreshold and AdaptiveConsecutiveTicks parameterise
	// the adaptive strategy's round-robin -> load-based switch: once any
	// subsystem's queue utilization exceeds the threshold for this many
	// consecutive ticks, the scheduler switches to load-based for the
	// remainder of its run.
	AdaptiveUtilizationThreshold float64
	AdaptiveConsecutiveTicks     int

	// TickInterval is the real-time pause between Tick calls inside the
	// scheduler's own Start loop. Defaults to 1ms.
	TickInterval time.Duration
}

type scheduledEntry struct {
	name          string
	wrapper       *kernel.Wrapper
	priority      int
	overUtilTicks int
}

// Scheduler fairly time-slices Process calls across every registered
// subsystem. Within one subsystem's queue, FIFO always holds (the
// subsystem itself guarantees that); across subsystems there is no
// ordering guarantee beyond whatever the active Strategy produces.
type Scheduler struct {
	mu      sync.Mutex
	cfg     SchedulerConfig
	entries []*scheduledEntry
	cursor  int

	adaptiveLoadBased bool

	metrics *metrics.Registry
	log     *logger.Logger

	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler returns a Scheduler with no subsystems registered yet.
func NewScheduler(cfg SchedulerConfig, m *metrics.Registry, log *logger.Logger) *Scheduler {
	if cfg.TimeSliceMs <= 0 {
		cfg.TimeSliceMs = 50
	}
	if cfg.Strategy == "" {
		cfg.Strategy = RoundRobin
	}
	if cfg.AdaptiveUtilizationThreshold <= 0 {
		cfg.AdaptiveUtilizationThreshold = 0.75
	}
	if cfg.AdaptiveConsecutiveTicks <= 0 {
		cfg.AdaptiveConsecutiveTicks = 3
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Millisecond
	}
	return &Scheduler{cfg: cfg, metrics: m, log: log}
}

// Add registers a subsystem for scheduling. priority is consulted only by
// the "priority" strategy; higher values run first.
func (s *Scheduler) Add(name string, w *kernel.Wrapper, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &scheduledEntry{name: name, wrapper: w, priority: priority})
}

// Remove drops a subsystem from scheduling, e.g. once disposed.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.name == name {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			if s.cursor > i {
				s.cursor--
			}
			return
		}
	}
}

func isLive(e *scheduledEntry) bool {
	switch e.wrapper.State() {
	case subsystem.StatePaused, subsystem.StateDisposed:
		return false
	default:
		return true
	}
}

// Tick selects exactly one subsystem per the configured strategy and grants
// it one Process(timeSliceMs) call. A no-op if nothing is registered or
// every registered subsystem is paused/disposed.
func (s *Scheduler) Tick() {
	s.mu.Lock()

	live := make([]*scheduledEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if isLive(e) {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		s.mu.Unlock()
		return
	}

	strategy := s.cfg.Strategy
	if strategy == Adaptive {
		strategy = s.resolveAdaptiveLocked(live)
	}

	var chosen *scheduledEntry
	switch strategy {
	case Priority:
		chosen = pickByScore(live, func(e *scheduledEntry) float64 { return float64(e.priority) })
	case LoadBased:
		chosen = pickByScore(live, func(e *scheduledEntry) float64 { return float64(e.wrapper.Queue().Len()) })
	default:
		chosen = s.pickRoundRobinLocked()
	}

	if s.metrics != nil && chosen != nil {
		s.metrics.SchedulerTicks.WithLabelValues(chosen.name, string(strategy)).Inc()
		for _, e := range live {
			s.metrics.QueueDepth.WithLabelValues(e.name).Set(float64(e.wrapper.Queue().Len()))
		}
	}
	s.mu.Unlock()

	if chosen != nil {
		chosen.wrapper.Process(s.cfg.TimeSliceMs)
	}
}

// pickRoundRobinLocked advances a persistent cursor over the full
// registration-order entry list, skipping non-live entries, so that a
// paused subsystem never consumes a turn but rejoining later resumes from
// its original slot rather than the back of the line.
func (s *Scheduler) pickRoundRobinLocked() *scheduledEntry {
	n := len(s.entries)
	if n == 0 {
		return nil
	}
	for i := 0; i < n; i++ {
		idx := (s.cursor + i) % n
		e := s.entries[idx]
		if isLive(e) {
			s.cursor = (idx + 1) % n
			return e
		}
	}
	return nil
}

// resolveAdaptiveLocked implements the adaptive strategy: it tracks, per
// subsystem, consecutive ticks spent above AdaptiveUtilizationThreshold
// utilization (queue.Len()/queue.Capacity()). Once any subsystem crosses
// AdaptiveConsecutiveTicks, the scheduler switches to load-based for the
// remainder of its run.
func (s *Scheduler) resolveAdaptiveLocked(live []*scheduledEntry) Strategy {
	for _, e := range live {
		q := e.wrapper.Queue()
		capacity := q.Capacity()
		if capacity <= 0 {
			continue
		}
		util := float64(q.Len()) / float64(capacity)
		if util > s.cfg.AdaptiveUtilizationThreshold {
			e.overUtilTicks++
			if e.overUtilTicks >= s.cfg.AdaptiveConsecutiveTicks {
				s.adaptiveLoadBased = true
			}
		} else {
			e.overUtilTicks = 0
		}
	}
	if s.adaptiveLoadBased {
		return LoadBased
	}
	return RoundRobin
}

func pickByScore(live []*scheduledEntry, score func(*scheduledEntry) float64) *scheduledEntry {
	if len(live) == 0 {
		return nil
	}
	best := live[0]
	bestScore := score(best)
	for _, e := range live[1:] {
		if sc := score(e); sc > bestScore {
			best, bestScore = e, sc
		}
	}
	return best
}

// Start launches the scheduler's own tick loop on a background goroutine,
// pacing by TickInterval. Idempotent: calling Start while already running
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	interval := s.cfg.TickInterval
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop halts the tick loop and awaits the in-flight slice, if any. A no-op
// if the scheduler isn't running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
