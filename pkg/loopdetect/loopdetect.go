// Package loopdetect watches for agents stuck retrying the same failing
// tool call. It keeps a small in-memory window per agent; history is
// advisory and deliberately not persisted: after a restart the agent earns
// a fresh chance before the breaker trips again.
package loopdetect

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kadirpekel/conductor/pkg/canonical"
)

const (
	DefaultMaxRecords       = 20
	DefaultFailureThreshold = 2
	DefaultHistoryTTL       = 30 * time.Minute
	DefaultMaxAgents        = 1000
)

type record struct {
	tool       string
	paramsHash string
	success    bool
	timestamp  time.Time
}

type agentHistory struct {
	records    []record // FIFO, newest last
	lastActive time.Time
}

// Options tunes the detector. Zero values fall back to the defaults.
type Options struct {
	// MaxRecords bounds the per-agent call window.
	MaxRecords int

	// FailureThreshold is the consecutive-failure count that trips the
	// breaker.
	FailureThreshold int

	// HistoryTTL evicts agents inactive beyond this duration.
	HistoryTTL time.Duration

	// MaxAgents bounds the agent map; least-recently-active are evicted
	// beyond it.
	MaxAgents int
}

func (o *Options) setDefaults() {
	if o.MaxRecords <= 0 {
		o.MaxRecords = DefaultMaxRecords
	}
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = DefaultFailureThreshold
	}
	if o.HistoryTTL <= 0 {
		o.HistoryTTL = DefaultHistoryTTL
	}
	if o.MaxAgents <= 0 {
		o.MaxAgents = DefaultMaxAgents
	}
}

// Detector tracks recent tool calls per agent. All methods are safe for
// concurrent use.
type Detector struct {
	mu   sync.Mutex
	opts Options

	agents map[string]*agentHistory
	now    func() time.Time
}

// New creates a detector.
func New(opts Options) *Detector {
	opts.setDefaults()
	return &Detector{
		opts:   opts,
		agents: make(map[string]*agentHistory),
		now:    time.Now,
	}
}

// RecordToolCall enqueues one execution outcome in the agent's window and
// runs eviction housekeeping.
func (d *Detector) RecordToolCall(agentID, tool string, params map[string]interface{}, success bool) {
	hash, err := canonical.HashToolCall(tool, params)
	if err != nil {
		slog.Warn("Loop detector could not hash tool call", "tool", tool, "error", err)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()

	history := d.agents[agentID]
	if history == nil {
		history = &agentHistory{}
		d.agents[agentID] = history
	}

	history.records = append(history.records, record{
		tool:       tool,
		paramsHash: hash,
		success:    success,
		timestamp:  now,
	})
	if len(history.records) > d.opts.MaxRecords {
		history.records = history.records[len(history.records)-d.opts.MaxRecords:]
	}
	history.lastActive = now

	d.evictLocked(now)
}

// DetectRepeatedFailures reports whether the agent has failed the same
// (tool, params) call at least FailureThreshold times in a row. Interleaved
// calls to other tools do not reset the count; any success for the same
// tool does.
func (d *Detector) DetectRepeatedFailures(agentID, tool string, params map[string]interface{}) bool {
	hash, err := canonical.HashToolCall(tool, params)
	if err != nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.agents[agentID]
	if history == nil {
		return false
	}

	failures := 0
	for i := len(history.records) - 1; i >= 0; i-- {
		rec := history.records[i]
		if rec.tool != tool {
			continue
		}
		if rec.success {
			break
		}
		if rec.paramsHash == hash {
			failures++
			if failures >= d.opts.FailureThreshold {
				return true
			}
		}
	}
	return false
}

// ConsecutiveFailures returns the current failure streak for (tool, params).
func (d *Detector) ConsecutiveFailures(agentID, tool string, params map[string]interface{}) int {
	hash, err := canonical.HashToolCall(tool, params)
	if err != nil {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	history := d.agents[agentID]
	if history == nil {
		return 0
	}

	failures := 0
	for i := len(history.records) - 1; i >= 0; i-- {
		rec := history.records[i]
		if rec.tool != tool {
			continue
		}
		if rec.success {
			break
		}
		if rec.paramsHash == hash {
			failures++
		}
	}
	return failures
}

// Reset drops the agent's history, typically after a run completes.
func (d *Detector) Reset(agentID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.agents, agentID)
}

// AgentCount returns the number of tracked agents.
func (d *Detector) AgentCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.agents)
}

func (d *Detector) evictLocked(now time.Time) {
	for agentID, history := range d.agents {
		if now.Sub(history.lastActive) > d.opts.HistoryTTL {
			delete(d.agents, agentID)
		}
	}

	if len(d.agents) <= d.opts.MaxAgents {
		return
	}

	type activity struct {
		agentID    string
		lastActive time.Time
	}
	byAge := make([]activity, 0, len(d.agents))
	for agentID, history := range d.agents {
		byAge = append(byAge, activity{agentID: agentID, lastActive: history.lastActive})
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].lastActive.Before(byAge[j].lastActive)
	})

	for _, a := range byAge[:len(d.agents)-d.opts.MaxAgents] {
		delete(d.agents, a.agentID)
	}
}
