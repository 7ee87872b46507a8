package engine

import "encoding/json"

// Event is the closed union of classification stream events. Keeping it a
// tagged union instead of a loose map means every consumer switch is
// exhaustive; the unexported marker method seals the set to this package.
type Event interface {
	isEvent()
}

// ProgressEvent reports that one more transaction has finished, carrying
// the running completed/total count and the vendor just processed. It
// always precedes that transaction's success or error event.
type ProgressEvent struct {
	Current   string `json:"current"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// SuccessEvent carries the persisted classification for one transaction.
type SuccessEvent struct {
	ID           string   `json:"id"`
	Category     string   `json:"category"`
	Line         string   `json:"line"`
	QuickLabels  []string `json:"quickLabels"`
	Confidence   float64  `json:"confidence"`
	DeductionPct float64  `json:"deductionPct"`
	IsMeal       bool     `json:"isMeal"`
	IsTravel     bool     `json:"isTravel"`
}

// ErrorEvent reports a per-transaction failure. It never terminates the
// stream; the transaction stays unclassified for a later retry.
type ErrorEvent struct {
	Message string `json:"message"`
}

// DoneEvent is the terminal event, emitted exactly once per run.
type DoneEvent struct {
	Successful  int `json:"successful"`
	CachedCount int `json:"cachedCount"`
}

func (ProgressEvent) isEvent() {}
func (SuccessEvent) isEvent()  {}
func (ErrorEvent) isEvent()    {}
func (DoneEvent) isEvent()     {}

// MarshalJSON emits the wire shape with its type discriminant. The
// discriminant lives here rather than in a struct field so a zero-valued
// event can never serialize with the wrong tag.
func (e ProgressEvent) MarshalJSON() ([]byte, error) {
	type alias ProgressEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "progress", alias: alias(e)})
}

func (e SuccessEvent) MarshalJSON() ([]byte, error) {
	type alias SuccessEvent
	if e.QuickLabels == nil {
		e.QuickLabels = []string{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "success", alias: alias(e)})
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type alias ErrorEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "error", alias: alias(e)})
}

func (e DoneEvent) MarshalJSON() ([]byte, error) {
	type alias DoneEvent
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{Type: "done", alias: alias(e)})
}
