package agent

import (
	"encoding/json"
	"fmt"
	"testing"
)

func TestHashCall_StableAndArgSensitive(t *testing.T) {
	a := hashCall("exec", json.RawMessage(`{"cmd":"ls"}`))
	b := hashCall("exec", json.RawMessage(`{"cmd":"ls"}`))
	if a != b {
		t.Errorf("hashCall is not stable for identical input: %q != %q", a, b)
	}
	c := hashCall("exec", json.RawMessage(`{"cmd":"pwd"}`))
	if a == c {
		t.Error("hashCall produced the same key for different args")
	}
}

func TestToolLoopState_DetectEscalatesWarningThenCritical(t *testing.T) {
	var s toolLoopState
	args := json.RawMessage(`{"a":1}`)

	var lastLevel string
	for i := 0; i < loopCriticalThreshold; i++ {
		key := s.record("exec", args)
		s.recordResult(key, "same output every time")
		level, _ := s.detect("exec", key)
		lastLevel = level
		if i+1 == loopWarnThreshold-1 {
			if level != "" {
				t.Errorf("call %d: level = %q, want empty below the warn threshold", i+1, level)
			}
		}
		if i+1 == loopWarnThreshold {
			if level != "warning" {
				t.Errorf("call %d: level = %q, want warning at the threshold", i+1, level)
			}
		}
	}
	if lastLevel != "critical" {
		t.Errorf("final level = %q, want critical after %d identical repeats", lastLevel, loopCriticalThreshold)
	}
}

func TestToolLoopState_DifferentArgsDoNotAccumulate(t *testing.T) {
	var s toolLoopState
	key1 := s.record("exec", json.RawMessage(`{"cmd":"a"}`))
	s.recordResult(key1, "result a")
	level1, _ := s.detect("exec", key1)
	if level1 != "" {
		t.Errorf("level = %q after a single call, want empty", level1)
	}

	key2 := s.record("exec", json.RawMessage(`{"cmd":"b"}`))
	if key1 == key2 {
		t.Fatal("expected distinct keys for distinct args")
	}
	s.recordResult(key2, "result b")
	level2, _ := s.detect("exec", key2)
	if level2 != "" {
		t.Errorf("level = %q for a first-time call with different args, want empty", level2)
	}
}

func TestToolLoopState_ChangingResultsDoNotEscalate(t *testing.T) {
	var s toolLoopState
	args := json.RawMessage(`{"cmd":"poll"}`)

	for i := 0; i < loopCriticalThreshold+2; i++ {
		key := s.record("poll_status", args)
		// Same (name, args) every time, but the result keeps changing, so
		// this is progress, not a stuck loop.
		s.recordResult(key, fmt.Sprintf("status: step %d", i))
		level, _ := s.detect("poll_status", key)
		if level != "" {
			t.Errorf("call %d: level = %q, want empty while results keep changing", i+1, level)
		}
	}
}

func TestToolLoopState_ResultStreakResetsOnProgress(t *testing.T) {
	var s toolLoopState
	args := json.RawMessage(`{"cmd":"retry"}`)

	for i := 0; i < loopWarnThreshold; i++ {
		key := s.record("retry", args)
		s.recordResult(key, "stuck")
		_, _ = s.detect("retry", key)
	}

	key := s.record("retry", args)
	s.recordResult(key, "finally different")
	level, _ := s.detect("retry", key)
	if level != "" {
		t.Errorf("level = %q immediately after a different result, want empty (streak should reset)", level)
	}
}
