package credential

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// Principal returns the identity of the invoking OS user, used as the default
// session id. On unix this is the numeric uid; elsewhere it falls back to the
// account's user id string (a SID on Windows).
func Principal() (string, error) {
	if uid := os.Getuid(); uid >= 0 {
		return strconv.Itoa(uid), nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to determine current user: %w", err)
	}
	return u.Uid, nil
}
