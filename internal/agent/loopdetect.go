package agent

import (
	"encoding/json"
	"hash/fnv"
	"strconv"
)

// toolLoopState detects a sub-agent- or main-agent-run stuck repeatedly
// calling the same tool with the same arguments without making progress
// (SPEC_FULL.md §4 "Loop-detection on repeated tool calls"), grounded on
// the teacher's loopDetector referenced throughout internal/agent/loop.go
// (its own type definition was filtered from the retrieval pack; this is
// re-derived from the call sites' (name, args)-hash / warn-then-critical
// shape).
type toolLoopState struct {
	results map[string]string // last tool_result text per (name,args) key
	streak  map[string]int    // consecutive identical-result count per key
}

const (
	loopWarnThreshold     = 3
	loopCriticalThreshold = 5
)

func (s *toolLoopState) ensure() {
	if s.results == nil {
		s.results = make(map[string]string)
		s.streak = make(map[string]int)
	}
}

// hashCall derives a stable key for a (tool name, args) pair.
func hashCall(name string, args json.RawMessage) string {
	h := fnv.New64a()
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write(args)
	return name + ":" + strconv.FormatUint(h.Sum64(), 36)
}

// record derives the hash key for (name, args). The repeat streak itself is
// tracked by recordResult, since "repeated" only means something once we
// know whether the call is actually making progress.
func (s *toolLoopState) record(name string, args json.RawMessage) string {
	s.ensure()
	return hashCall(name, args)
}

// recordResult remembers the tool_result text for a hash key and bumps its
// streak when the result is identical to the last one seen for that key, so
// detect() can tell whether the model is making progress (different results
// each time, streak resets) or stuck (identical results repeating, streak
// grows).
func (s *toolLoopState) recordResult(key, result string) {
	s.ensure()
	if prev, ok := s.results[key]; ok && prev == result {
		s.streak[key]++
	} else {
		s.streak[key] = 1
	}
	s.results[key] = result
}

// detect reports "warning" once a (name, args) pair has produced the same
// result loopWarnThreshold times in a row and "critical" at
// loopCriticalThreshold, returning a corrective message to feed back to the
// model at the warning level. A call whose result keeps changing never
// escalates, even if the same arguments are repeated.
func (s *toolLoopState) detect(name, key string) (level, message string) {
	s.ensure()
	n := s.streak[key]
	switch {
	case n >= loopCriticalThreshold:
		return "critical", "repeated calls to " + name + " without progress"
	case n >= loopWarnThreshold:
		return "warning", "You have called " + name + " with the same arguments " +
			"multiple times without making progress. Try a different approach."
	default:
		return "", ""
	}
}
