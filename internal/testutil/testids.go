package testutil

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync/atomic"
)

var sessionCounter int64

const maxSafeName = 64

// NewTestSessionID returns a process-local unique session id that is valid
// as a session file suffix. Pass t.Name() to make ids traceable per test.
// Long names are truncated and suffixed with a short hash.
func NewTestSessionID(prefix, tname string) string {
	id := atomic.AddInt64(&sessionCounter, 1)
	safe := strings.NewReplacer(`/`, `-_-`, `\`, `-_-`, "\x00", "").Replace(tname)
	if len(safe) > maxSafeName {
		h := fnv.New32a()
		_, _ = h.Write([]byte(safe))
		suffix := fmt.Sprintf("-%08x", h.Sum32())
		safe = safe[:maxSafeName-len(suffix)] + suffix
	}
	return fmt.Sprintf("%s-%s-%d", prefix, safe, id)
}
