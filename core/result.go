package core

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Reasons produced by the core itself. Adapters report their own reasons
// inside Success values and are never reclassified.
const (
	ReasonMissingFunction = "missing_function"
	ReasonException       = "js_exception"
)

// TaskDefinition identifies one requested effect.
// AttemptID groups the definitions of one logical operation of the caller;
// TaskID is unique within that attempt.
type TaskDefinition struct {
	Function  string `json:"function" msgpack:"function"`
	AttemptID string `json:"attemptId" msgpack:"attemptId"`
	TaskID    string `json:"taskId" msgpack:"taskId"`
	Args      any    `json:"args" msgpack:"args"`
}

// TaskBatch is one inbound channel message. Order carries no execution order.
type TaskBatch []TaskDefinition

// Failure is the error half of an Outcome.
type Failure struct {
	Reason  string `json:"reason" msgpack:"reason"`
	Message string `json:"message" msgpack:"message"`
	Raw     any    `json:"raw,omitempty" msgpack:"raw,omitempty"`
}

func (f *Failure) Error() string {
	return f.Reason + ": " + f.Message
}

// Outcome holds either a value or a Failure.
//
// On the wire it is {"value": v} or {"error": {...}}. A success always carries
// the value key, even when the value is nil.
type Outcome struct {
	Value any      `json:"value" msgpack:"value"`
	Error *Failure `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Success wraps a value returned by an Implementation.
func Success(value any) Outcome {
	return Outcome{Value: value}
}

// Fail wraps a Failure.
func Fail(f Failure) Outcome {
	return Outcome{Error: &f}
}

// IsFailure reports whether the outcome carries a Failure.
func (o Outcome) IsFailure() bool {
	return o.Error != nil
}

func (o Outcome) wire() map[string]any {
	if o.Error != nil {
		return map[string]any{"error": o.Error}
	}
	return map[string]any{"value": o.Value}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.wire())
}

func (o Outcome) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(o.wire())
}

func (o Outcome) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(o.wire())
}

// TaskResult is the outcome correlated to one TaskDefinition.
type TaskResult struct {
	AttemptID string  `json:"attemptId" msgpack:"attemptId"`
	TaskID    string  `json:"taskId" msgpack:"taskId"`
	Result    Outcome `json:"result" msgpack:"result"`
}

// ResultBatch is one outbound channel message. Results are in completion
// order and may span several TaskBatches; correlate by AttemptID/TaskID.
type ResultBatch []TaskResult

func resultFor(def TaskDefinition, outcome Outcome) TaskResult {
	return TaskResult{
		AttemptID: def.AttemptID,
		TaskID:    def.TaskID,
		Result:    outcome,
	}
}
