// Package internal_test contains cross-package security tests for cvansible.
package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/cvansible/internal/commcell"
	"github.com/joeycumines/cvansible/internal/config"
	"github.com/joeycumines/cvansible/internal/credential"
	"github.com/joeycumines/cvansible/internal/lifecycle"
	"github.com/joeycumines/cvansible/internal/module"
	"github.com/joeycumines/cvansible/internal/storage"
	"github.com/joeycumines/cvansible/internal/testutil"
)

// ============================================================================
// Path Traversal Prevention Tests
// ============================================================================

func TestPathTraversalPrevention_SessionID(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store := storage.NewStore(storage.WithRoot(root))

	for _, id := range []string{
		"../../etc/passwd",
		"..",
		"nested/id",
		`windows\id`,
		"null\x00byte",
		"",
		"1000.lock",
	} {
		t.Run(strings.ToValidUTF8(id, "?"), func(t *testing.T) {
			if _, err := store.Path(id); !errors.Is(err, storage.ErrInvalidSessionID) {
				t.Errorf("Expected ErrInvalidSessionID for %q, got %v", id, err)
			}
			res, err := credential.NewResolver("1000").Resolve(credential.Params{SessionID: id})
			if id != "" && err == nil {
				t.Errorf("Resolver accepted session_id %q as %q", id, res.SessionID)
			}
		})
	}
}

func TestPathTraversalPrevention_ConfigSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}
	t.Parallel()

	dir := t.TempDir()
	target := filepath.Join(dir, "real-config")
	if err := os.WriteFile(target, []byte("[sessions]\ndir /tmp/elsewhere\n"), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "config")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	if _, err := config.LoadFromPath(link); err == nil {
		t.Error("Expected symlinked config to be rejected")
	}
}

// ============================================================================
// File Permission Tests
// ============================================================================

func TestFilePermissionHandling_SessionFileOwnerOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	t.Parallel()

	srv := testutil.NewWebServer(t)
	root := t.TempDir()
	store := storage.NewStore(storage.WithRoot(root))
	id := testutil.NewTestSessionID("security", t.Name())

	// A pre-existing world-readable file must be narrowed on save.
	path, err := store.Path(id)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0666); err != nil {
		t.Fatal(err)
	}

	mgr := lifecycle.New[*commcell.Connection](store, commcell.NewClient(commcell.Config{}), credential.NewResolver(id))
	err = mgr.Run(context.Background(), credential.Params{
		WebserverHostname: srv.URL,
		CommcellUsername:  testutil.Username,
		CommcellPassword:  testutil.Password,
	}, func(ctx context.Context, conn *commcell.Connection) error { return nil })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("Expected session file mode 0700, got %o", perm)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("Temporary file left behind: %s", e.Name())
		}
	}
}

// ============================================================================
// Session Isolation Tests
// ============================================================================

func TestSessionDataIsolation_NotLeakedBetweenSessions(t *testing.T) {
	t.Parallel()

	srv := testutil.NewWebServer(t)
	store := storage.NewStore(storage.WithRoot(t.TempDir()))
	client := commcell.NewClient(commcell.Config{})

	conn, err := client.LoginWithPassword(context.Background(), srv.URL, testutil.Username, testutil.Password)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Save("session-one", conn); err != nil {
		t.Fatal(err)
	}

	if err := store.Load("session-two", client.NewHandle()); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Errorf("Expected session-two to be absent, got %v", err)
	}
}

func TestSessionDataIsolation_ConcurrentSaves(t *testing.T) {
	t.Parallel()

	srv := testutil.NewWebServer(t)
	store := storage.NewStore(storage.WithRoot(t.TempDir()), storage.WithLockTimeout(time.Second))
	client := commcell.NewClient(commcell.Config{})
	conn, err := client.LoginWithPassword(context.Background(), srv.URL, testutil.Username, testutil.Password)
	if err != nil {
		t.Fatal(err)
	}

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Save("shared", conn); err != nil {
				t.Errorf("Save failed: %v", err)
			}
		}()
	}
	wg.Wait()

	restored := client.NewHandle()
	if err := store.Load("shared", restored); err != nil {
		t.Fatalf("Concurrent saves left a corrupt session: %v", err)
	}
	if restored.AuthToken() != testutil.Token {
		t.Errorf("Unexpected token after concurrent saves")
	}
}

// ============================================================================
// Output Sanitization Tests
// ============================================================================

func TestOutputSanitization_NoSecretsInLogsOrResults(t *testing.T) {
	t.Parallel()

	srv := testutil.NewWebServer(t)
	var logs bytes.Buffer
	runner := &module.Runner{
		Registry:  module.DefaultRegistry(),
		Store:     storage.NewStore(storage.WithRoot(t.TempDir())),
		Principal: "1000",
		Logger:    slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}

	const secret = "hunter2-secret"
	data, _ := json.Marshal(map[string]any{
		"webserver_hostname": srv.URL,
		"commcell_username":  testutil.Username,
		"commcell_password":  secret,
	})
	argsPath := filepath.Join(t.TempDir(), "args")
	if err := os.WriteFile(argsPath, data, 0600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	module.Exit(&out, runner.Run(context.Background(), "login", argsPath))

	if strings.Contains(logs.String(), secret) {
		t.Errorf("Password leaked into logs: %s", logs.String())
	}
	if strings.Contains(out.String(), secret) {
		t.Errorf("Password leaked into module result: %s", out.String())
	}
	if logs.Len() == 0 {
		t.Error("Expected debug logs to be written")
	}
}

// ============================================================================
// Config Injection Prevention Tests
// ============================================================================

func TestConfigInjection_InvalidValuesRejected(t *testing.T) {
	t.Parallel()

	for _, input := range []string{
		"[client]\nscheme file\n",
		"[client]\ntimeoutSeconds 0\n",
		"[client]\ninsecureSkipVerify maybe\n",
		"[sessions]\nstaleAfterHours -1\n",
		"[sessions]\nlockTimeoutSeconds $(reboot)\n",
	} {
		if _, err := config.LoadFromReader(strings.NewReader(input)); err == nil {
			t.Errorf("Expected error for config %q", input)
		}
	}
}

func TestResourceLimits_ExtremelyLongConfigValues(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 32*1024)
	cfg, err := config.LoadFromReader(strings.NewReader("log.file " + long + "\n"))
	if err != nil {
		t.Fatalf("Failed to load long value: %v", err)
	}
	if v, _ := cfg.GetGlobalOption("log.file"); v != long {
		t.Error("Long value was truncated")
	}
}
