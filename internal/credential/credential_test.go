package credential

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/cvansible/internal/storage"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		want      Set
		sessionID string
	}{
		{
			name:      "commcell pair",
			params:    Params{WebserverHostname: "h", CommcellUsername: "u", CommcellPassword: "p"},
			want:      Set{Kind: Password, Hostname: "h", Username: "u", Password: "p"},
			sessionID: "1000",
		},
		{
			name:      "webserver pair",
			params:    Params{WebserverHostname: "h", WebserverUsername: "u", WebserverPassword: "p"},
			want:      Set{Kind: Password, Hostname: "h", Username: "u", Password: "p"},
			sessionID: "1000",
		},
		{
			name:      "identical pairs collapse",
			params:    Params{WebserverHostname: "h", CommcellUsername: "u", CommcellPassword: "p", WebserverUsername: "u", WebserverPassword: "p"},
			want:      Set{Kind: Password, Hostname: "h", Username: "u", Password: "p"},
			sessionID: "1000",
		},
		{
			name:      "token",
			params:    Params{WebserverHostname: "h", AuthToken: "QSDK t"},
			want:      Set{Kind: Token, Hostname: "h", Token: "QSDK t"},
			sessionID: "1000",
		},
		{
			name:      "nothing",
			params:    Params{},
			want:      Set{Kind: None},
			sessionID: "1000",
		},
		{
			name:      "credentials without hostname fall back to session",
			params:    Params{CommcellUsername: "u", CommcellPassword: "p"},
			want:      Set{Kind: None},
			sessionID: "1000",
		},
		{
			name:      "token without hostname falls back to session",
			params:    Params{AuthToken: "t"},
			want:      Set{Kind: None},
			sessionID: "1000",
		},
		{
			name:      "incomplete pair with token uses token",
			params:    Params{WebserverHostname: "h", CommcellUsername: "u", AuthToken: "t"},
			want:      Set{Kind: Token, Hostname: "h", Token: "t"},
			sessionID: "1000",
		},
		{
			name:      "explicit session id",
			params:    Params{SessionID: "shared"},
			want:      Set{Kind: None},
			sessionID: "shared",
		},
	}

	resolver := NewResolver("1000")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := resolver.Resolve(tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Credentials)
			assert.Equal(t, tt.sessionID, res.SessionID)
		})
	}
}

func TestResolve_BothFormsAreAmbiguous(t *testing.T) {
	resolver := NewResolver("1000")
	values := []string{"x", "same", "QSDK 123", " "}
	for _, v := range values {
		for _, p := range []Params{
			{WebserverHostname: v, CommcellUsername: v, CommcellPassword: v, AuthToken: v},
			{WebserverHostname: v, WebserverUsername: v, WebserverPassword: v, AuthToken: v},
			{WebserverHostname: "h", CommcellUsername: "u", CommcellPassword: "p", AuthToken: v, SessionID: "s"},
		} {
			_, err := resolver.Resolve(p)
			assert.ErrorIs(t, err, ErrAmbiguousCredentials, "params %+v", p)
		}
	}
}

func TestResolve_ConflictingPairs(t *testing.T) {
	_, err := NewResolver("1000").Resolve(Params{
		WebserverHostname: "h",
		CommcellUsername:  "a", CommcellPassword: "p",
		WebserverUsername: "b", WebserverPassword: "p",
	})
	assert.ErrorIs(t, err, ErrAmbiguousCredentials)
}

func TestResolve_InvalidSessionID(t *testing.T) {
	_, err := NewResolver("1000").Resolve(Params{SessionID: "../etc"})
	assert.ErrorIs(t, err, storage.ErrInvalidSessionID)
}

func TestParamsLogValueRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := Params{
		WebserverHostname: "h",
		CommcellUsername:  "u",
		CommcellPassword:  "hunter2",
		WebserverPassword: "hunter3",
		AuthToken:         "QSDK secret",
	}
	logger.Info("resolve", "params", p)
	logger.Info("set", "credentials", Set{Kind: Password, Hostname: "h", Username: "u", Password: "hunter2"})

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "hunter3")
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "params.commcell_username=u")
}

func TestPrincipal(t *testing.T) {
	p, err := Principal()
	require.NoError(t, err)
	assert.NotEmpty(t, p)
	assert.NoError(t, storage.ValidateSessionID(p))
}
