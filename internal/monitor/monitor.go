// Package monitor tracks per-job execution bookkeeping: counts, running
// state, duration averages, and failure rates. It powers health checks and
// stuck-execution detection/recovery.
//
// The monitor is an explicitly constructed component injected into the
// orchestrator, never a process global; state is in-memory only and dies
// with the process.
package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	logx "cadence/pkg/logx"
)

// Stats is the execution bookkeeping for one named job. Exclusively
// mutated by the Monitor; callers get copies.
type Stats struct {
	LastExecutionStart     time.Time     `json:"last_execution_start,omitzero"`
	ExecutionCount         int           `json:"execution_count"`
	RunningDurationAverage time.Duration `json:"running_duration_average"`
	SuccessCount           int           `json:"success_count"`
	FailureCount           int           `json:"failure_count"`
	IsRunning              bool          `json:"is_running"`
	LastError              string        `json:"last_error,omitempty"`
}

// FailureRate returns failures / total runs, or 0 before the first run.
func (s Stats) FailureRate() float64 {
	total := s.SuccessCount + s.FailureCount
	if total == 0 {
		return 0
	}
	return float64(s.FailureCount) / float64(total)
}

type Config struct {
	// StuckAfter flags a job still marked running this long after it
	// started. Default 20 minutes.
	StuckAfter time.Duration
	// StaleAfter flags an idle job whose last start is this old,
	// implying the periodic trigger stopped firing. Default 30 minutes.
	StaleAfter time.Duration
	// FailureRateLimit flags a job whose failure rate exceeds this
	// fraction. Default 0.5.
	FailureRateLimit float64
}

func (c Config) withDefaults() Config {
	if c.StuckAfter <= 0 {
		c.StuckAfter = 20 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Minute
	}
	if c.FailureRateLimit <= 0 {
		c.FailureRateLimit = 0.5
	}
	return c
}

type jobState struct {
	stats        Stats
	registeredAt time.Time
}

type Monitor struct {
	mu   sync.Mutex
	cfg  Config
	log  logx.Logger
	jobs map[string]*jobState

	// Injected clock for deterministic tests.
	now func() time.Time
}

func New(cfg Config, log logx.Logger) *Monitor {
	return &Monitor{
		cfg:  cfg.withDefaults(),
		log:  log,
		jobs: map[string]*jobState{},
		now:  time.Now,
	}
}

// StuckThreshold exposes the configured stuck-running threshold for
// callers that drive auto-recovery on their own cadence.
func (m *Monitor) StuckThreshold() time.Duration { return m.cfg.StuckAfter }

// StartMonitoring registers a job. Idempotent; re-registration never
// clears existing stats.
func (m *Monitor) StartMonitoring(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobs[name] == nil {
		m.jobs[name] = &jobState{registeredAt: m.now()}
	}
}

// MarkStarted records the beginning of one execution.
func (m *Monitor) MarkStarted(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobLocked(name)
	j.stats.LastExecutionStart = m.now()
	j.stats.ExecutionCount++
	j.stats.IsRunning = true
}

// MarkCompleted records the end of one execution, folding its duration
// into the running average.
func (m *Monitor) MarkCompleted(name string, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeLocked(m.jobLocked(name), duration, success)
}

// MarkFailed records a failed execution with its error. One locked
// section: concurrent marks can never observe the failure counted but the
// error not yet recorded.
func (m *Monitor) MarkFailed(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobLocked(name)
	m.completeLocked(j, 0, false)
	if err != nil {
		j.stats.LastError = err.Error()
	}
}

func (m *Monitor) completeLocked(j *jobState, duration time.Duration, success bool) {
	j.stats.IsRunning = false
	if success {
		j.stats.SuccessCount++
		j.stats.LastError = ""
	} else {
		j.stats.FailureCount++
	}

	n := j.stats.SuccessCount + j.stats.FailureCount
	if n <= 1 {
		j.stats.RunningDurationAverage = duration
	} else {
		prev := j.stats.RunningDurationAverage
		j.stats.RunningDurationAverage = prev + (duration-prev)/time.Duration(n)
	}
}

// Stats returns a copy of one job's stats.
func (m *Monitor) Stats(name string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[name]
	if j == nil {
		return Stats{}, false
	}
	return j.stats, true
}

// All returns a copy of every job's stats.
func (m *Monitor) All() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Stats, len(m.jobs))
	for name, j := range m.jobs {
		out[name] = j.stats
	}
	return out
}

// Report is the aggregate health view over all monitored jobs.
type Report struct {
	Healthy bool     `json:"healthy"`
	Issues  []string `json:"issues,omitempty"`
}

// Health evaluates three conditions per job: still running past the stuck
// threshold, idle with a stale last start (trigger stopped firing), and
// failure rate above the limit.
func (m *Monitor) Health() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	names := make([]string, 0, len(m.jobs))
	for name := range m.jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	var issues []string
	for _, name := range names {
		j := m.jobs[name]
		s := j.stats

		if s.IsRunning && now.Sub(s.LastExecutionStart) > m.cfg.StuckAfter {
			issues = append(issues, fmt.Sprintf("%s: running for %s, exceeds stuck threshold %s", name, now.Sub(s.LastExecutionStart).Round(time.Second), m.cfg.StuckAfter))
			continue
		}

		lastSeen := s.LastExecutionStart
		if lastSeen.IsZero() {
			lastSeen = j.registeredAt
		}
		if !s.IsRunning && now.Sub(lastSeen) > m.cfg.StaleAfter {
			issues = append(issues, fmt.Sprintf("%s: no execution for %s, trigger may have stopped", name, now.Sub(lastSeen).Round(time.Second)))
		}

		if rate := s.FailureRate(); rate > m.cfg.FailureRateLimit {
			issues = append(issues, fmt.Sprintf("%s: failure rate %.0f%% (%d/%d)", name, rate*100, s.FailureCount, s.SuccessCount+s.FailureCount))
		}
	}

	return Report{Healthy: len(issues) == 0, Issues: issues}
}

// CheckForStuckJobs returns the names of jobs still marked running past
// the threshold. A zero threshold uses the configured default.
func (m *Monitor) CheckForStuckJobs(threshold time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stuckLocked(threshold)
}

func (m *Monitor) stuckLocked(threshold time.Duration) []string {
	if threshold <= 0 {
		threshold = m.cfg.StuckAfter
	}
	now := m.now()
	var stuck []string
	for name, j := range m.jobs {
		if j.stats.IsRunning && now.Sub(j.stats.LastExecutionStart) > threshold {
			stuck = append(stuck, name)
		}
	}
	sort.Strings(stuck)
	return stuck
}

// AutoRecoverStuckJobs force-clears the running flag of stuck jobs and
// records a synthetic error. This repairs monitor bookkeeping so the run
// lock can be re-acquired on the next trigger; it cannot interrupt actual
// in-flight work. Recovery does not count as a failed execution, so the
// failure rate reflects only real run outcomes.
func (m *Monitor) AutoRecoverStuckJobs(threshold time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	stuck := m.stuckLocked(threshold)
	now := m.now()
	for _, name := range stuck {
		j := m.jobs[name]
		elapsed := now.Sub(j.stats.LastExecutionStart).Round(time.Second)
		j.stats.IsRunning = false
		j.stats.LastError = fmt.Sprintf("auto-recovered after %s stuck in running state", elapsed)
		if !m.log.IsZero() {
			m.log.Warn("stuck job auto-recovered", logx.String("job", name), logx.Duration("stuck_for", now.Sub(j.stats.LastExecutionStart)))
		}
	}
	return stuck
}

// ForceReset clears a job's stats while keeping its registration.
func (m *Monitor) ForceReset(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[name]
	if j == nil {
		return
	}
	j.stats = Stats{}
	j.registeredAt = m.now()
}

func (m *Monitor) jobLocked(name string) *jobState {
	j := m.jobs[name]
	if j == nil {
		j = &jobState{registeredAt: m.now()}
		m.jobs[name] = j
	}
	return j
}
