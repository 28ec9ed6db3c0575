// Package dedupe decides whether a tool call can be answered from the turn
// log instead of being re-executed.
//
// The cache key is the canonical hash of (tool, params); the cache itself is
// the agent's own turn log, so a cached answer survives restarts for free.
// Only successful results are ever returned; a cached failure would hide a
// transient error behind a permanent one.
package dedupe

import (
	"time"

	"github.com/kadirpekel/conductor/pkg/canonical"
	"github.com/kadirpekel/conductor/pkg/state"
	"github.com/kadirpekel/conductor/pkg/tools"
)

// Deduplicator resolves per-tool cache policy against the engine default.
type Deduplicator struct {
	defaultTTL time.Duration
}

// New creates a deduplicator with the engine-wide staleness threshold.
func New(defaultTTL time.Duration) *Deduplicator {
	return &Deduplicator{defaultTTL: defaultTTL}
}

// Key computes the dedupe id for a call. The same id doubles as the
// turn_id of the eventual tool result.
func (d *Deduplicator) Key(tool string, params map[string]interface{}) (string, error) {
	return canonical.HashToolCall(tool, params)
}

// TTL resolves the effective freshness window for a tool.
func (d *Deduplicator) TTL(info tools.ToolInfo) time.Duration {
	if info.CustomTTL > 0 {
		return info.CustomTTL
	}
	return d.defaultTTL
}

// Lookup returns the most recent fresh successful result for dedupeID, or
// nil when the tool opts out of caching or no fresh success exists.
func (d *Deduplicator) Lookup(st *state.AgentState, info tools.ToolInfo, dedupeID string, now time.Time) *state.ToolExecutionResult {
	if st == nil || !info.Dedupable() {
		return nil
	}
	return st.FindCachedResult(dedupeID, d.TTL(info), now)
}
