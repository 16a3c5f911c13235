package logging

// Redacted replaces sensitive values in logs.
const Redacted = "********"

// Redact returns a shallow copy of args with every non-empty sensitive key
// replaced by Redacted.
func Redact(args map[string]any, sensitive []string) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, k := range sensitive {
		if v, ok := out[k]; ok && v != nil && v != "" {
			out[k] = Redacted
		}
	}
	return out
}
