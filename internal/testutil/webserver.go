// Package testutil holds test helpers shared across packages: a fake web
// server speaking the subset of the REST API the client uses, and unique
// session ids for tests sharing a session directory.
package testutil

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

// Credentials accepted by WebServer.
const (
	Username = "u"
	Password = "p"
	Token    = "QSDK 0123456789"
	JobID    = 7
)

// WebServer mimics the web server endpoints used by the client. Only job
// JobID exists.
type WebServer struct {
	*httptest.Server
	Requests atomic.Int32
	Logins   atomic.Int32
	Logouts  atomic.Int32
	Polls    atomic.Int32

	mu       sync.Mutex
	statuses []string
	actions  []string
}

// SetJobStatuses sets the statuses returned by successive job polls. The
// last one repeats.
func (ws *WebServer) SetJobStatuses(s ...string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.statuses = s
}

// Actions returns the job actions received so far.
func (ws *WebServer) Actions() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]string(nil), ws.actions...)
}

// NewWebServer starts a WebServer that is closed when the test ends.
func NewWebServer(t testing.TB) *WebServer {
	t.Helper()
	ws := &WebServer{statuses: []string{"Running"}}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webconsole/api/Login", func(w http.ResponseWriter, r *http.Request) {
		ws.Logins.Add(1)
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		pw, _ := base64.StdEncoding.DecodeString(req.Password)
		w.Header().Set("Content-Type", "application/json")
		if req.Username != Username || string(pw) != Password {
			_, _ = io.WriteString(w, `{"errList":[{"errorCode":5,"errLogMessage":"Login Failed"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"token":"`+Token+`","userName":"`+Username+`"}`)
	})

	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authtoken") != Token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			h(w, r)
		}
	}

	mux.HandleFunc("GET /webconsole/api/WhoAmI", authed(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"user":{"userName":"token-user"}}`)
	}))
	mux.HandleFunc("POST /webconsole/api/Logout", authed(func(w http.ResponseWriter, r *http.Request) {
		ws.Logouts.Add(1)
		_, _ = io.WriteString(w, "User logged out")
	}))
	mux.HandleFunc("GET /webconsole/api/Job/{id}", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			_, _ = io.WriteString(w, `{"totalRecordsWithoutPaging":0}`)
			return
		}
		ws.mu.Lock()
		n := int(ws.Polls.Add(1)) - 1
		if n >= len(ws.statuses) {
			n = len(ws.statuses) - 1
		}
		status := ws.statuses[n]
		ws.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jobs": []any{map[string]any{"jobSummary": map[string]any{"jobId": JobID, "status": status, "jobType": "Backup"}}},
		})
	}))
	mux.HandleFunc("POST /webconsole/api/Job/{id}/action/{action}", authed(func(w http.ResponseWriter, r *http.Request) {
		ws.mu.Lock()
		ws.actions = append(ws.actions, r.PathValue("action"))
		ws.mu.Unlock()
		if r.PathValue("id") != "7" {
			_, _ = io.WriteString(w, `{"errorCode":1,"errorMessage":"No such job"}`)
			return
		}
		_, _ = io.WriteString(w, `{"errorCode":0}`)
	}))
	// Echo endpoint for raw requests.
	mux.HandleFunc("/webconsole/api/cvdrbackup/info", authed(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"method": r.Method, "body": string(body)})
	}))

	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws.Requests.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(ws.Close)
	return ws
}
