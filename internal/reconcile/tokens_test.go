package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glprovision/internal/config"
	"glprovision/internal/gitlab"
	"glprovision/internal/report"
)

func testClient(t *testing.T, handler http.HandlerFunc, opts ...gitlab.Option) *gitlab.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]gitlab.Option{gitlab.WithRetryPolicy(1, time.Millisecond)}, opts...)
	return gitlab.NewClient(server.URL, "token", opts...)
}

func newTokens(client *gitlab.Client, rep *report.Report) *Tokens {
	return &Tokens{
		Client:       client,
		Mode:         config.AuthGroupTokenPerRootGroup,
		LifetimeDays: 30,
		Report:       rep,
		Now:          func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestEnsure_ExistingTokenVerified(t *testing.T) {
	var posts atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts.Add(1)
		}
		json.NewEncoder(w).Encode([]gitlab.AccessToken{
			{ID: 9, Name: "some other token"},
			{ID: 11, Name: IntegrationName, Revoked: false},
		})
	})

	rep := report.New()
	secret := newTokens(client, rep).Ensure(context.Background(), GroupTarget(42))

	assert.Empty(t, secret)
	assert.Equal(t, int32(0), posts.Load(), "a satisfied token must not trigger a create")
	require.Len(t, rep.TokensVerified, 1)
	assert.Equal(t, int64(42), rep.TokensVerified[0].GroupID)
	assert.Equal(t, int64(11), rep.TokensVerified[0].TokenID)
	assert.Empty(t, rep.TokensCreated)
}

// An expired-but-unrevoked token still satisfies the requirement; only the
// name and revoked flag are checked.
func TestEnsure_ExpiredTokenStillSatisfies(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode([]gitlab.AccessToken{
			{ID: 11, Name: IntegrationName, Revoked: false, ExpiresAt: "2020-01-01"},
		})
	})

	rep := report.New()
	newTokens(client, rep).Ensure(context.Background(), GroupTarget(42))

	assert.Len(t, rep.TokensVerified, 1)
	assert.Empty(t, rep.TokensCreated)
}

func TestEnsure_RevokedTokenIgnored(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode([]gitlab.AccessToken{
				{ID: 11, Name: IntegrationName, Revoked: true},
			})
		case http.MethodPost:
			json.NewEncoder(w).Encode(gitlab.AccessToken{ID: 12, Name: IntegrationName, Token: "glpat-new"})
		}
	})

	rep := report.New()
	secret := newTokens(client, rep).Ensure(context.Background(), GroupTarget(42))

	assert.Equal(t, "glpat-new", secret)
	require.Len(t, rep.TokensCreated, 1)
}

func TestEnsure_CreatesTokenWithFixedPolicy(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`[]`))
		case http.MethodPost:
			assert.Equal(t, "/api/v4/projects/7/access_tokens", r.URL.Path)
			var payload tokenPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, IntegrationName, payload.Name)
			assert.Equal(t, []string{"api", "read_repository"}, payload.Scopes)
			assert.Equal(t, accessLevelMaintainer, payload.AccessLevel)
			assert.Equal(t, "2026-08-31", payload.ExpiresAt) // now + 30 days
			json.NewEncoder(w).Encode(gitlab.AccessToken{ID: 3, Name: payload.Name, Token: "glpat-secret"})
		}
	})

	rep := report.New()
	secret := newTokens(client, rep).Ensure(context.Background(), ProjectTarget(7))

	assert.Equal(t, "glpat-secret", secret)
	require.Len(t, rep.TokensCreated, 1)
	assert.Equal(t, int64(7), rep.TokensCreated[0].ProjectID)
	assert.Equal(t, "glpat-secret", rep.TokensCreated[0].TokenValue)
}

// GitLab answers 400 with a "permission" message when the caller's role is
// too low to create a token. That failure is flagged for manual remediation
// and never leaks a token value.
func TestEnsure_PermissionDeniedFlaggedForManualAction(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`[]`))
		case http.MethodPost:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message": "400 Bad request - insufficient permission to create token"}`))
		}
	})

	rep := report.New()
	secret := newTokens(client, rep).Ensure(context.Background(), GroupTarget(42))

	assert.Empty(t, secret)
	assert.Empty(t, rep.TokensCreated)
	require.Len(t, rep.Errors, 1)
	assert.True(t, rep.Errors[0].ManualActionRequired)
	assert.Equal(t, int64(42), rep.Errors[0].GroupID)
	assert.Equal(t, "ensure_group_token", rep.Errors[0].Operation)
}

func TestEnsure_GenericCreateFailure(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte(`[]`))
		case http.MethodPost:
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte(`{"message": "name already taken"}`))
		}
	})

	rep := report.New()
	newTokens(client, rep).Ensure(context.Background(), GroupTarget(42))

	require.Len(t, rep.Errors, 1)
	assert.False(t, rep.Errors[0].ManualActionRequired)
}

func TestEnsure_BotPATModeMakesNoCalls(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	rep := report.New()
	tokens := newTokens(client, rep)
	tokens.Mode = config.AuthBotUserPAT

	secret := tokens.Ensure(context.Background(), GroupTarget(42))

	assert.Empty(t, secret)
	assert.Equal(t, int32(0), calls.Load())
	assert.Empty(t, rep.TokensVerified)
	assert.Empty(t, rep.TokensCreated)
}

func TestEnsure_DryRunCreatesNothing(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method, "dry run must not POST")
		w.Write([]byte(`[]`))
	}, gitlab.WithDryRun(true))

	rep := report.New()
	secret := newTokens(client, rep).Ensure(context.Background(), GroupTarget(42))

	assert.Empty(t, secret)
	assert.Empty(t, rep.TokensCreated)
	assert.Empty(t, rep.Errors)
}
