package workflow

import (
	"encoding/json"
	"fmt"
	"maps"

	xe "github.com/opst/modelflow/pkg/errors"
)

// Well-known keys of open fields.
const (
	// create workflow: true when infrastructure should be created for the model.
	FieldCreateInfra = "createInfra"

	// update workflow: true when the job changes capacity of the model.
	FieldHasCapacityUpdate = "hasCapacityUpdate"

	// true while a polling loop should take its wait-edge.
	FieldContinuePolling = "continuePolling"

	// the job which has started the workflow.
	FieldRequest = "request"
)

// FailureRecord is a failure carried by a Context on the way to a failure terminal.
type FailureRecord struct {
	Kind    xe.Kind `json:"kind"`
	Message string  `json:"message"`
}

// Context is the document passed between states of a workflow instance.
//
// Context is a value. Methods with "With" prefix return an updated copy and
// never modify the receiver, so states can not mutate copies held by others.
type Context struct {
	modelId   string
	version   int
	pollToken string
	pollCount int
	pollLoop  string
	lastError *FailureRecord
	fields    map[string]json.RawMessage
}

// NewContext creates the initial Context of a workflow instance for the model.
func NewContext(modelId string) Context {
	return Context{modelId: modelId}
}

func (c Context) ModelId() string {
	return c.modelId
}

// Version is incremented on each step of the engine.
func (c Context) Version() int {
	return c.version
}

// PollToken identifies the outstanding remote operation.
func (c Context) PollToken() string {
	return c.pollToken
}

// PollCount is the number of polls made in the current polling loop.
func (c Context) PollCount() int {
	return c.pollCount
}

// PollLoop is the name of the polling loop the workflow is (or was lastly) in.
func (c Context) PollLoop() string {
	return c.pollLoop
}

// LastError is non-nil only on the way to a failure terminal.
func (c Context) LastError() *FailureRecord {
	if c.lastError == nil {
		return nil
	}
	le := *c.lastError
	return &le
}

// Flag reads a boolean open field. Missing or non-boolean fields are false.
func (c Context) Flag(key string) bool {
	var b bool
	if ok, err := c.Field(key, &b); !ok || err != nil {
		return false
	}
	return b
}

// Field decodes an open field into out.
//
// It returns false when the field is missing.
func (c Context) Field(key string, out any) (bool, error) {
	raw, ok := c.fields[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("field %s: %w", key, err)
	}
	return true, nil
}

// Keys of open fields.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c.fields))
	for k := range c.fields {
		keys = append(keys, k)
	}
	return keys
}

func (c Context) clone() Context {
	n := c
	n.fields = maps.Clone(c.fields)
	if c.lastError != nil {
		le := *c.lastError
		n.lastError = &le
	}
	return n
}

// Clone returns a deep copy of the Context.
func (c Context) Clone() Context {
	return c.clone()
}

// WithField returns a copy with an open field set to value.
//
// It panics if value can not be marshalled as JSON; fields hold plain data only.
func (c Context) WithField(key string, value any) Context {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(fmt.Errorf("field %s is not JSON-able: %w", key, err))
	}
	n := c.clone()
	if n.fields == nil {
		n.fields = map[string]json.RawMessage{}
	}
	n.fields[key] = raw
	return n
}

// WithoutField returns a copy without the open field.
func (c Context) WithoutField(key string) Context {
	n := c.clone()
	delete(n.fields, key)
	return n
}

// WithFlag = WithField(key, value), for booleans.
func (c Context) WithFlag(key string, value bool) Context {
	return c.WithField(key, value)
}

// WithPoll returns a copy holding the token of the outstanding remote operation.
func (c Context) WithPoll(token string) Context {
	n := c.clone()
	n.pollToken = token
	return n
}

// WithPollCount returns a copy with pollCount updated.
//
// pollCount never decreases in a polling loop: a smaller count is ignored.
func (c Context) WithPollCount(count int) Context {
	n := c.clone()
	if n.pollCount < count {
		n.pollCount = count
	}
	return n
}

// EnterPollLoop returns a copy in the polling loop named loop.
//
// Entering a different loop resets pollCount to zero. Re-entering the same loop keeps it.
func (c Context) EnterPollLoop(loop string) Context {
	if loop == "" || loop == c.pollLoop {
		return c
	}
	n := c.clone()
	n.pollLoop = loop
	n.pollCount = 0
	return n
}

// WithLastError returns a copy carrying the failure.
func (c Context) WithLastError(f *xe.Failure) Context {
	n := c.clone()
	if f == nil {
		n.lastError = nil
		return n
	}
	n.lastError = &FailureRecord{Kind: f.Kind, Message: f.Error()}
	return n
}

// Stepped returns a copy with version incremented.
func (c Context) Stepped() Context {
	n := c.clone()
	n.version += 1
	return n
}

type contextJSON struct {
	ModelId   string                     `json:"modelId"`
	Version   int                        `json:"version"`
	PollToken string                     `json:"pollToken,omitempty"`
	PollCount int                        `json:"pollCount"`
	PollLoop  string                     `json:"pollLoop,omitempty"`
	LastError *FailureRecord             `json:"lastError,omitempty"`
	Fields    map[string]json.RawMessage `json:"fields,omitempty"`
}

func (c Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextJSON{
		ModelId:   c.modelId,
		Version:   c.version,
		PollToken: c.pollToken,
		PollCount: c.pollCount,
		PollLoop:  c.pollLoop,
		LastError: c.lastError,
		Fields:    c.fields,
	})
}

func (c *Context) UnmarshalJSON(b []byte) error {
	var cj contextJSON
	if err := json.Unmarshal(b, &cj); err != nil {
		return err
	}
	*c = Context{
		modelId:   cj.ModelId,
		version:   cj.Version,
		pollToken: cj.PollToken,
		pollCount: cj.PollCount,
		pollLoop:  cj.PollLoop,
		lastError: cj.LastError,
		fields:    cj.Fields,
	}
	return nil
}

// Equal reports whether two contexts carry the same document.
func (c Context) Equal(o Context) bool {
	if c.modelId != o.modelId || c.version != o.version ||
		c.pollToken != o.pollToken || c.pollCount != o.pollCount || c.pollLoop != o.pollLoop {
		return false
	}
	if (c.lastError == nil) != (o.lastError == nil) {
		return false
	}
	if c.lastError != nil && *c.lastError != *o.lastError {
		return false
	}
	return maps.EqualFunc(c.fields, o.fields, func(a, b json.RawMessage) bool {
		return string(a) == string(b)
	})
}
