// File: api/schemas/schemas.go
// Description: Core data contracts shared between the orchestrator, the
// supervisor, the planner stack and the HTTP surface. These types are the
// validating boundary against the reasoning oracle: every kind vocabulary is
// closed, and anything outside it is rejected at decode time rather than
// forwarded opaquely.
package schemas

import (
	"fmt"
	"time"
)

// IntentKind is the closed vocabulary of user intents the system understands.
type IntentKind string

const (
	IntentSendMessage      IntentKind = "send_message"
	IntentOpenApp          IntentKind = "open_app"
	IntentSearch           IntentKind = "search"
	IntentFindFile         IntentKind = "find_file"
	IntentPlayMedia        IntentKind = "play_media"
	IntentEnableFeature    IntentKind = "enable_feature"
	IntentDisableFeature   IntentKind = "disable_feature"
	IntentNavigateTo       IntentKind = "navigate_to"
	IntentReadNotification IntentKind = "read_notification"
	IntentMakeCall         IntentKind = "make_call"
	IntentUnknown          IntentKind = "unknown"
)

// intentKinds is the membership set used by ParseIntentKind.
var intentKinds = map[IntentKind]struct{}{
	IntentSendMessage:      {},
	IntentOpenApp:          {},
	IntentSearch:           {},
	IntentFindFile:         {},
	IntentPlayMedia:        {},
	IntentEnableFeature:    {},
	IntentDisableFeature:   {},
	IntentNavigateTo:       {},
	IntentReadNotification: {},
	IntentMakeCall:         {},
	IntentUnknown:          {},
}

// ParseIntentKind validates a raw tag against the intent vocabulary.
// Unrecognized tags are a decode failure, never a silently accepted value.
func ParseIntentKind(raw string) (IntentKind, error) {
	k := IntentKind(raw)
	if _, ok := intentKinds[k]; !ok {
		return "", fmt.Errorf("unrecognized intent kind %q", raw)
	}
	return k, nil
}

// ActionKind is the closed vocabulary of atomic UI operations the device-side
// executor can perform.
type ActionKind string

const (
	ActionOpenApp  ActionKind = "open_app"
	ActionClick    ActionKind = "click"
	ActionSetText  ActionKind = "setText"
	ActionScroll   ActionKind = "scroll"
	ActionFindText ActionKind = "find_text"
	ActionWait     ActionKind = "wait"
	ActionBack     ActionKind = "back"
	ActionHome     ActionKind = "home"
)

// CatalogEntry pairs an action kind with the one-line semantics the planner
// embeds in its prompts.
type CatalogEntry struct {
	Kind        ActionKind
	Description string
}

// ActionCatalog is the read-only description of every available action kind.
// The order is stable so planner prompts are reproducible.
var ActionCatalog = []CatalogEntry{
	{ActionOpenApp, "Launch an application (value: package name)"},
	{ActionClick, "Click an element (target: text or description)"},
	{ActionSetText, "Type text into a field (value: text to type)"},
	{ActionScroll, "Scroll the screen (value: \"up\" or \"down\")"},
	{ActionFindText, "Check if text is visible (target: text to find)"},
	{ActionWait, "Pause briefly (value: milliseconds)"},
	{ActionBack, "Go back (device back button)"},
	{ActionHome, "Go to home screen"},
}

var actionKinds = func() map[ActionKind]struct{} {
	m := make(map[ActionKind]struct{}, len(ActionCatalog))
	for _, e := range ActionCatalog {
		m[e.Kind] = struct{}{}
	}
	return m
}()

// ParseActionKind validates a raw tag against the action vocabulary.
func ParseActionKind(raw string) (ActionKind, error) {
	k := ActionKind(raw)
	if _, ok := actionKinds[k]; !ok {
		return "", fmt.Errorf("unrecognized action kind %q", raw)
	}
	return k, nil
}

// ScreenState is an immutable snapshot of what is currently visible on the
// device, produced by the external accessibility collaborator.
type ScreenState struct {
	CurrentApp     string   `json:"current_app"`
	VisibleTexts   []string `json:"visible_texts"`
	FocusedElement string   `json:"focused_element,omitempty"`
}

// Intent is the structured interpretation of one user utterance. It is
// created once per utterance and immutable thereafter.
type Intent struct {
	Kind       IntentKind        `json:"kind"`
	TargetApp  string            `json:"target_app,omitempty"`
	Entities   map[string]string `json:"entities"`
	Confidence float64           `json:"confidence"`
}

// FallbackIntent is what the resolver returns when the oracle response could
// not be decoded into a usable intent.
func FallbackIntent() Intent {
	return Intent{Kind: IntentUnknown, Confidence: 0, Entities: map[string]string{}}
}

// Validate enforces the Intent invariants.
func (i Intent) Validate() error {
	if _, err := ParseIntentKind(string(i.Kind)); err != nil {
		return err
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("intent confidence %v outside [0,1]", i.Confidence)
	}
	return nil
}

// Action is one atomic UI operation. Immutable once created.
type Action struct {
	Kind ActionKind `json:"kind"`
	// Target is the UI element text or description the action applies to.
	Target string `json:"target,omitempty"`
	// Value carries the action payload: text to type, package name, scroll
	// direction or wait duration in milliseconds.
	Value     string `json:"value,omitempty"`
	ClassName string `json:"class_name,omitempty"`
	// Index disambiguates between duplicate on-screen matches. A nil index
	// means "first match".
	Index *int `json:"index,omitempty"`
}

// Validate enforces the Action invariants.
func (a Action) Validate() error {
	_, err := ParseActionKind(string(a.Kind))
	return err
}

// Plan is an ordered action sequence intended to satisfy one Intent.
// A Plan is never mutated after creation; replanning supersedes it with a
// fresh Plan and retains the old one as failure-prompt context only.
type Plan struct {
	TaskID    string    `json:"task_id"`
	Intent    Intent    `json:"intent"`
	Actions   []Action  `json:"actions"`
	CreatedAt time.Time `json:"created_at"`
}

// ActionStatus is the executor's verdict on a single action.
type ActionStatus string

const (
	StatusSuccess ActionStatus = "SUCCESS"
	StatusFailed  ActionStatus = "FAILED"
	// StatusElementNotFound is reported instead of a generic failure when the
	// target UI element is absent; the replanning prompt distinguishes it.
	StatusElementNotFound ActionStatus = "ELEMENT_NOT_FOUND"
)

// ParseActionStatus validates an executor-reported status tag.
func ParseActionStatus(raw string) (ActionStatus, error) {
	switch s := ActionStatus(raw); s {
	case StatusSuccess, StatusFailed, StatusElementNotFound:
		return s, nil
	default:
		return "", fmt.Errorf("unrecognized action status %q", raw)
	}
}

// ActionResult is produced exactly once per executed action by the external
// executor and consumed exactly once by the supervisor.
type ActionResult struct {
	ActionIndex  int          `json:"action_index"`
	Status       ActionStatus `json:"status"`
	DurationMS   int64        `json:"duration_ms"`
	ErrorMessage string       `json:"error_message,omitempty"`
	ScreenAfter  *ScreenState `json:"screen_state_after,omitempty"`
}

// Validate enforces the ActionResult invariants.
func (r ActionResult) Validate() error {
	if _, err := ParseActionStatus(string(r.Status)); err != nil {
		return err
	}
	if r.ActionIndex < 0 {
		return fmt.Errorf("action index %d is negative", r.ActionIndex)
	}
	if r.DurationMS < 0 {
		return fmt.Errorf("duration %dms is negative", r.DurationMS)
	}
	return nil
}

// FailureReason renders the reason string the replanning prompt receives:
// the executor's error message when present, otherwise a human-readable
// rendering of the status.
func (r ActionResult) FailureReason() string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	if r.Status == StatusElementNotFound {
		return "Element not found"
	}
	return "Action failed"
}

// FailureContext carries everything the planner needs to produce a
// replacement plan after a failed action.
type FailureContext struct {
	FailedAction Action       `json:"failed_action"`
	Reason       string       `json:"reason"`
	ScreenAfter  *ScreenState `json:"screen_after,omitempty"`
}

// FailureRecord is one entry in a task's append-only failure history.
type FailureRecord struct {
	ActionIndex int       `json:"action_index"`
	Action      Action    `json:"action"`
	Reason      string    `json:"reason"`
	At          time.Time `json:"at"`
}
