// Package skills implements the Skill Registry (spec §2, §4.1, §4.3): a
// catalog of tool descriptors, optionally exposed through a filtering view
// for sub-agents. Grounded on the teacher's internal/tools package
// (Result union, Registry, PolicyEngine), renamed to the spec's "Skill"
// vocabulary, and restructured per spec §9 Design Notes ("Runtime-
// reflective skill dispatch → tagged sum type"): a closed Kind enum
// (Executable vs DocOnly) replaces goclaw's dynamic-proxy capability
// interception, with filtering expressed as a predicate passed into lookup
// rather than runtime reflection over method sets.
package skills

import (
	"context"
	"encoding/json"
)

// Kind tags a Skill as either invocable or documentation-only, the closed
// sum type spec §9 calls for in place of runtime interception.
type Kind int

const (
	KindExecutable Kind = iota
	KindDocOnly
)

// Handler executes a skill's declared action. Never panics for expected
// failures — tool errors are returned as a Result with IsError set (spec §9
// "Exceptions for control flow inside tool execution → result union").
type Handler func(ctx context.Context, input json.RawMessage) (*Result, error)

// Skill is one entry in the Registry: a tool descriptor plus, for
// executable skills, the handler that runs it.
type Skill struct {
	Name        string
	Description string
	Schema      map[string]interface{} // JSON schema for input validation
	Kind        Kind
	Handler     Handler // nil when Kind == KindDocOnly
}

// Result is the unified, non-throwing return type from skill execution
// (spec §9 Design Notes "result union carrying {success, output, error?}").
type Result struct {
	ForLLM  string // content fed back to the model as a tool_result
	ForUser string // content surfaced to the end user, if any
	IsError bool
	Silent  bool
}

func NewResult(forLLM string) *Result           { return &Result{ForLLM: forLLM} }
func ErrorResult(message string) *Result        { return &Result{ForLLM: message, IsError: true} }
func SilentResult(forLLM string) *Result        { return &Result{ForLLM: forLLM, Silent: true} }
func UserResult(forLLM, forUser string) *Result { return &Result{ForLLM: forLLM, ForUser: forUser} }
