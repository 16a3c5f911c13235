package module

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrResultContract is returned by Result.Validate when a module result is
// missing the mandatory changed flag, or carries flags of the wrong type.
var ErrResultContract = errors.New("result contract violation")

// Result is the JSON object a module prints on exit.
type Result map[string]any

// SetChanged records whether the module changed anything on the server.
func (r Result) SetChanged(changed bool) { r["changed"] = changed }

// Changed reports the changed flag, false when unset.
func (r Result) Changed() bool {
	v, _ := r["changed"].(bool)
	return v
}

// Failed reports the failed flag, false when unset.
func (r Result) Failed() bool {
	v, _ := r["failed"].(bool)
	return v
}

// Fail marks the result failed with msg. A failed run never reports a
// change.
func (r Result) Fail(msg string) {
	r["failed"] = true
	r["changed"] = false
	r["msg"] = msg
}

// Validate checks the result contract: changed must be present and a bool,
// and failed, when present, must be a bool.
func (r Result) Validate() error {
	v, ok := r["changed"]
	if !ok {
		return fmt.Errorf("%w: module did not set changed", ErrResultContract)
	}
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("%w: changed is %T, not bool", ErrResultContract, v)
	}
	if v, ok := r["failed"]; ok {
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%w: failed is %T, not bool", ErrResultContract, v)
		}
	}
	return nil
}

// Failure returns a failed result carrying msg.
func Failure(msg string) Result {
	r := Result{}
	r.Fail(msg)
	return r
}

// Exit writes result to w as the module's only output and returns the
// process exit status: 0 on success, 1 on failure. A result that breaks the
// contract, or cannot be encoded, is replaced by a failure naming the
// problem.
func Exit(w io.Writer, result Result) int {
	if err := result.Validate(); err != nil {
		result = Failure(err.Error())
	}
	if _, ok := result["failed"]; !ok {
		result["failed"] = false
	}

	data, err := json.Marshal(result)
	if err != nil {
		result = Failure(fmt.Sprintf("failed to encode module result: %v", err))
		data, _ = json.Marshal(result)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return 1
	}
	if result.Failed() {
		return 1
	}
	return 0
}
