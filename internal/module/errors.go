package module

import "strings"

// ArgError reports invalid module arguments.
type ArgError struct {
	Msg string
}

func (e *ArgError) Error() string { return e.Msg }

func missingArgs(names ...string) error {
	return &ArgError{Msg: "missing required arguments: " + strings.Join(names, ", ")}
}
