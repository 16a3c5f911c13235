package module

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/cvansible/internal/commcell"
	"github.com/joeycumines/cvansible/internal/logging"
	"github.com/joeycumines/cvansible/internal/storage"
	"github.com/joeycumines/cvansible/internal/testutil"
)

const principal = "1000"

type harness struct {
	srv    *testutil.WebServer
	root   string
	runner *Runner
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	return &harness{
		srv:  testutil.NewWebServer(t),
		root: root,
		runner: &Runner{
			Registry:  DefaultRegistry(),
			Store:     storage.NewStore(storage.WithRoot(root)),
			Client:    commcell.Config{Timeout: 5 * time.Second, PollInterval: time.Millisecond},
			Principal: principal,
		},
	}
}

func (h *harness) run(t *testing.T, name string, args map[string]any) Result {
	t.Helper()
	return h.runner.Run(context.Background(), name, writeArgs(t, args))
}

func (h *harness) credentials() map[string]any {
	return map[string]any{
		"webserver_hostname": h.srv.URL,
		"commcell_username":  testutil.Username,
		"commcell_password":  testutil.Password,
	}
}

func (h *harness) sessionPath() string {
	return filepath.Join(h.root, storage.FilePrefix+principal)
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	r := h.run(t, "login", h.credentials())
	require.False(t, r.Failed(), "login failed: %v", r["msg"])
}

func TestRun_LoginWritesOwnerOnlySession(t *testing.T) {
	h := newHarness(t)
	r := h.run(t, "login", h.credentials())

	var buf bytes.Buffer
	require.Equal(t, 0, Exit(&buf, r), buf.String())
	assert.True(t, r.Changed())
	assert.Equal(t, testutil.Token, r["authtoken"])

	info, err := os.Stat(h.sessionPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	moduleArgs := r["invocation"].(map[string]any)["module_args"].(map[string]any)
	assert.Equal(t, logging.Redacted, moduleArgs["commcell_password"])
	assert.NotContains(t, buf.String(), `"`+testutil.Password+`"`)
}

func TestRun_LoginWithWebserverPairAndToken(t *testing.T) {
	h := newHarness(t)
	r := h.run(t, "login", map[string]any{
		"webserver_hostname": h.srv.URL,
		"webserver_username": testutil.Username,
		"webserver_password": testutil.Password,
	})
	require.False(t, r.Failed(), r["msg"])

	r = h.run(t, "login", map[string]any{
		"webserver_hostname": h.srv.URL,
		"auth_token":         testutil.Token,
		"session_id":         "token-session",
	})
	require.False(t, r.Failed(), r["msg"])
	_, err := os.Stat(filepath.Join(h.root, storage.FilePrefix+"token-session"))
	assert.NoError(t, err)
}

func TestRun_LoginIgnoresCachedSession(t *testing.T) {
	h := newHarness(t)
	r := h.run(t, "login", map[string]any{
		"webserver_hostname": h.srv.URL,
		"commcell_username":  testutil.Username,
		"commcell_password":  testutil.Password,
	})
	require.False(t, r.Failed(), r["msg"])

	r = h.run(t, "login", map[string]any{"webserver_hostname": h.srv.URL})
	assert.True(t, r.Failed())
	assert.Equal(t, false, r["changed"])
	assert.Contains(t, r["msg"], "never reuses the cached session")
	assert.EqualValues(t, 1, h.srv.Logins.Load())
}

func TestRun_LoginRequiresCredentials(t *testing.T) {
	h := newHarness(t)
	r := h.run(t, "login", map[string]any{"webserver_hostname": h.srv.URL})
	assert.True(t, r.Failed())
	assert.Contains(t, r["msg"], "login never reuses the cached session")
	assert.Contains(t, r["msg"], "auth_token")

	r = h.run(t, "login", map[string]any{"commcell_username": "u", "commcell_password": "p"})
	assert.True(t, r.Failed())
	assert.Contains(t, r["msg"], "webserver_hostname")
	assert.EqualValues(t, 0, h.srv.Requests.Load())
}

func TestRun_LoginRejected(t *testing.T) {
	h := newHarness(t)
	args := h.credentials()
	args["commcell_password"] = "wrong"
	r := h.run(t, "login", args)
	assert.True(t, r.Failed())
	assert.False(t, r.Changed())
	assert.Contains(t, r["msg"], "Login Failed")
	_, err := os.Stat(h.sessionPath())
	assert.True(t, os.IsNotExist(err))
}

func TestRun_LoginSweepsStaleSessions(t *testing.T) {
	h := newHarness(t)
	stale := filepath.Join(h.root, storage.FilePrefix+"someone-else")
	require.NoError(t, os.WriteFile(stale, []byte("{}"), 0700))
	old := time.Now().Add(-90000 * time.Second)
	require.NoError(t, os.Chtimes(stale, old, old))

	h.login(t)
	_, err := os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_ReusesCachedSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	r := h.run(t, "job.status", map[string]any{"job_id": testutil.JobID})
	require.False(t, r.Failed(), r["msg"])
	assert.Equal(t, "Running", r["job_status"])
	assert.False(t, r.Changed())
	assert.EqualValues(t, 1, h.srv.Logins.Load())
}

func TestRun_NoCredentialsNoSession(t *testing.T) {
	h := newHarness(t)
	r := h.run(t, "job.status", map[string]any{"job_id": testutil.JobID})

	var buf bytes.Buffer
	assert.Equal(t, 1, Exit(&buf, r))
	assert.True(t, r.Failed())
	assert.False(t, r.Changed())
	assert.Contains(t, r["msg"], h.sessionPath())
	_, err := os.Stat(h.sessionPath())
	assert.True(t, os.IsNotExist(err), "no session file may be created")
	assert.EqualValues(t, 0, h.srv.Requests.Load())
}

func TestRun_AmbiguousCredentials(t *testing.T) {
	h := newHarness(t)
	args := h.credentials()
	args["auth_token"] = testutil.Token
	args["job_id"] = testutil.JobID
	r := h.run(t, "job.status", args)
	assert.True(t, r.Failed())
	assert.Contains(t, r["msg"], "ambiguous")
	assert.EqualValues(t, 0, h.srv.Requests.Load())
}

func TestRun_Logout(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	r := h.run(t, "logout", map[string]any{})
	require.False(t, r.Failed(), r["msg"])
	assert.True(t, r.Changed())
	assert.EqualValues(t, 1, h.srv.Logouts.Load())
	_, err := os.Stat(h.sessionPath())
	assert.True(t, os.IsNotExist(err))

	r = h.run(t, "logout", map[string]any{})
	assert.True(t, r.Failed())
	assert.Contains(t, r["msg"], "it might not exist")
}

func TestRun_Request(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	r := h.run(t, "request", map[string]any{
		"method":  "POST",
		"url":     "{0}/cvdrbackup/info",
		"payload": map[string]any{"isCompressionEnabled": true},
	})
	require.False(t, r.Failed(), r["msg"])
	assert.False(t, r.Changed())
	resp := r["response"].(map[string]any)
	assert.Equal(t, "POST", resp["method"])
	assert.JSONEq(t, `{"isCompressionEnabled":true}`, resp["body"].(string))

	r = h.run(t, "request", map[string]any{"method": "GET", "url": "{0}/nowhere"})
	assert.True(t, r.Failed())
}

func TestRun_JobControl(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.srv.SetJobStatuses("Running", "Killed")

	r := h.run(t, "job.kill", map[string]any{"job_id": testutil.JobID, "wait_for_job_to_kill": true})
	require.False(t, r.Failed(), r["msg"])
	assert.True(t, r.Changed())
	assert.Equal(t, "Killed", r["job_status"])

	h.srv.SetJobStatuses("Suspended")
	r = h.run(t, "job.suspend", map[string]any{"job_id": testutil.JobID, "wait_for_job_to_suspend": "yes"})
	require.False(t, r.Failed(), r["msg"])
	assert.Equal(t, "Suspended", r["job_status"])

	r = h.run(t, "job.resume", map[string]any{"job_id": testutil.JobID})
	require.False(t, r.Failed(), r["msg"])
	assert.NotContains(t, r, "job_status")

	assert.Equal(t, []string{"kill", "pause", "resume"}, h.srv.Actions())

	r = h.run(t, "job.kill", map[string]any{"job_id": 8})
	assert.True(t, r.Failed())
	assert.Contains(t, r["msg"], "No such job")
}

func TestRun_UnsupportedArgument(t *testing.T) {
	h := newHarness(t)
	r := h.run(t, "logout", map[string]any{"force": true, "_ansible_debug": false})
	assert.True(t, r.Failed())
	assert.Contains(t, r["msg"], "force")
	assert.NotContains(t, r["msg"], "_ansible_debug")
}

func TestRun_UnknownModule(t *testing.T) {
	h := newHarness(t)
	r := h.run(t, "backup", map[string]any{})
	assert.True(t, r.Failed())
	assert.Contains(t, r["msg"], "unknown module")
}

func TestRun_PanicStillPersistsSession(t *testing.T) {
	h := newHarness(t)
	h.runner.Registry.Register(&stubModule{
		BaseModule: NewBaseModule("explode", "", Options{}),
		fn: func(ctx context.Context, inv *Invocation, result Result) error {
			panic("kaboom")
		},
	})

	r := h.run(t, "explode", h.credentials())
	assert.True(t, r.Failed())
	assert.Contains(t, r["msg"], "kaboom")
	info, err := os.Stat(h.sessionPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestRun_ModuleErrorStillPersistsSession(t *testing.T) {
	h := newHarness(t)
	h.runner.Registry.Register(&stubModule{
		BaseModule: NewBaseModule("broken", "", Options{}),
		fn: func(ctx context.Context, inv *Invocation, result Result) error {
			result.SetChanged(true)
			return errors.New("operation failed")
		},
	})

	r := h.run(t, "broken", h.credentials())
	assert.True(t, r.Failed())
	assert.False(t, r.Changed())
	assert.Equal(t, "operation failed", r["msg"])
	_, err := os.Stat(h.sessionPath())
	assert.NoError(t, err)
}

func TestRun_ContractViolationFailsAtExit(t *testing.T) {
	h := newHarness(t)
	h.runner.Registry.Register(&stubModule{
		BaseModule: NewBaseModule("forgetful", "", Options{NoConnection: true}),
		fn: func(ctx context.Context, inv *Invocation, result Result) error {
			result["response"] = "done"
			return nil
		},
	})

	r := h.run(t, "forgetful", map[string]any{})
	var buf bytes.Buffer
	assert.Equal(t, 1, Exit(&buf, r))
	assert.Contains(t, buf.String(), ErrResultContract.Error())
}

func TestRun_SessionCleanup(t *testing.T) {
	h := newHarness(t)
	stale := filepath.Join(h.root, storage.FilePrefix+"old")
	fresh := filepath.Join(h.root, storage.FilePrefix+"new")
	for _, p := range []string{stale, fresh} {
		require.NoError(t, os.WriteFile(p, []byte("{}"), 0700))
	}
	old := time.Now().Add(-90000 * time.Second)
	require.NoError(t, os.Chtimes(stale, old, old))

	r := h.run(t, "session.cleanup", map[string]any{})
	require.False(t, r.Failed(), r["msg"])
	assert.True(t, r.Changed())
	assert.Equal(t, []string{stale}, r["removed"])
	_, err := os.Stat(fresh)
	assert.NoError(t, err)

	r = h.run(t, "session.cleanup", map[string]any{})
	assert.False(t, r.Changed())
	assert.EqualValues(t, 0, h.srv.Requests.Load())
}
