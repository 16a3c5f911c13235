package module

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/joeycumines/cvansible/internal/credential"
)

// ErrUnsupportedArgs is returned for argument names a module does not know.
var ErrUnsupportedArgs = errors.New("unsupported parameters")

// internalPrefix marks arguments Ansible adds for its own use.
const internalPrefix = "_ansible_"

// ReadArgs reads the JSON arguments file Ansible passes to binary modules,
// dropping Ansible's internal keys. Numbers are kept as json.Number.
func ReadArgs(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module arguments: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var args map[string]any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("failed to parse module arguments %s: %w", path, err)
	}
	for k := range args {
		if strings.HasPrefix(k, internalPrefix) {
			delete(args, k)
		}
	}
	return args, nil
}

type validator interface {
	Validate() error
}

// decodeArgs splits args into the login parameters and the module's own
// argument struct. Names outside both sets are rejected.
func decodeArgs(args map[string]any, m Module) (credential.Params, any, error) {
	var params credential.Params
	modArgs := m.NewArgs()

	supported := make(map[string]bool, len(credential.Names))
	for _, name := range credential.Names {
		supported[name] = true
	}
	if modArgs != nil {
		for _, name := range argNames(modArgs) {
			supported[name] = true
		}
	}
	var unknown []string
	for k := range args {
		if !supported[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		names := make([]string, 0, len(supported))
		for name := range supported {
			names = append(names, name)
		}
		sort.Strings(names)
		return params, nil, fmt.Errorf("%w for (%s) module: %s. Supported parameters include: %s",
			ErrUnsupportedArgs, m.Name(), strings.Join(unknown, ", "), strings.Join(names, ", "))
	}

	// Login arguments are strings; YAML may hand over numbers for ids.
	normalized := make(map[string]any, len(args))
	for k, v := range args {
		if n, ok := v.(json.Number); ok && supportedLogin(k) {
			v = n.String()
		}
		normalized[k] = v
	}
	data, err := json.Marshal(normalized)
	if err != nil {
		return params, nil, fmt.Errorf("failed to encode module arguments: %w", err)
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, nil, fmt.Errorf("invalid login arguments: %w", err)
	}
	if modArgs != nil {
		if err := json.Unmarshal(data, modArgs); err != nil {
			return params, nil, fmt.Errorf("invalid arguments for (%s) module: %w", m.Name(), err)
		}
		if v, ok := modArgs.(validator); ok {
			if err := v.Validate(); err != nil {
				return params, nil, err
			}
		}
	}
	return params, modArgs, nil
}

func supportedLogin(name string) bool {
	for _, n := range credential.Names {
		if n == name {
			return true
		}
	}
	return false
}

// argNames returns the json names of the exported fields of the struct v
// points to.
func argNames(v any) []string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}
	var names []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		names = append(names, name)
	}
	return names
}

// Int is an integer argument that also accepts numeric strings.
type Int int64

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unquoted)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("%s is not an integer", b)
	}
	*i = Int(n)
	return nil
}

// Bool is a boolean argument that also accepts the strings Ansible treats as
// booleans, such as "yes" and "off".
type Bool bool

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bool) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "y", "t", "1":
		*b = true
	case "false", "no", "off", "n", "f", "0":
		*b = false
	default:
		return fmt.Errorf("%s is not a boolean", data)
	}
	return nil
}
