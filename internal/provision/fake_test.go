package provision

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"glprovision/internal/config"
	"glprovision/internal/gitlab"
)

// fakeGitLab is a stateful in-memory stand-in for the GitLab v4 API,
// covering the endpoints the provisioner touches. Creates and updates
// mutate its state so a second run sees what the first one did.
type fakeGitLab struct {
	mu sync.Mutex

	groups   map[int64]gitlab.Group
	projects map[int64]gitlab.Project
	tokens   map[string][]gitlab.AccessToken // key: "groups/42", "projects/7"
	hooks    map[string][]gitlab.Hook
	nextID   int64

	authFails     bool
	groupHooks404 bool
	writes        int // POST + PUT calls observed
}

func newFakeGitLab() *fakeGitLab {
	return &fakeGitLab{
		groups:   map[int64]gitlab.Group{},
		projects: map[int64]gitlab.Project{},
		tokens:   map[string][]gitlab.AccessToken{},
		hooks:    map[string][]gitlab.Hook{},
		nextID:   1000,
	}
}

func (f *fakeGitLab) addGroup(id int64, path, fullPath string, parentID int64) {
	f.groups[id] = gitlab.Group{ID: id, Name: path, Path: path, FullPath: fullPath, ParentID: parentID}
}

func (f *fakeGitLab) addProject(id int64, pathWithNamespace string, nsID int64, nsFullPath string) {
	f.projects[id] = gitlab.Project{
		ID:                id,
		PathWithNamespace: pathWithNamespace,
		Namespace:         gitlab.Namespace{ID: nsID, Kind: "group", FullPath: nsFullPath},
	}
}

func (f *fakeGitLab) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *fakeGitLab) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		f.writes++
	}

	path := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v4/")
	switch {
	case path == "user":
		if f.authFails {
			writeError(w, http.StatusUnauthorized, "401 Unauthorized")
			return
		}
		writeJSON(w, gitlab.User{ID: 1, Username: "integration-bot", Name: "Integration Bot"})

	case path == "groups":
		f.searchGroups(w, r)

	case strings.HasPrefix(path, "groups/"):
		f.groupResource(w, r, strings.TrimPrefix(path, "groups/"))

	case strings.HasPrefix(path, "projects/"):
		f.projectResource(w, r, strings.TrimPrefix(path, "projects/"))

	default:
		writeError(w, http.StatusNotFound, "404 Not Found")
	}
}

func (f *fakeGitLab) searchGroups(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	matches := []gitlab.Group{}
	for _, g := range f.groups {
		if strings.Contains(g.Path, search) || strings.Contains(g.FullPath, search) {
			matches = append(matches, g)
		}
	}
	writeJSON(w, matches)
}

func (f *fakeGitLab) groupResource(w http.ResponseWriter, r *http.Request, rest string) {
	segs := strings.SplitN(rest, "/", 2)
	identifier, _ := url.PathUnescape(segs[0])

	group, ok := f.lookupGroup(identifier)
	if !ok {
		writeError(w, http.StatusNotFound, "404 Group Not Found")
		return
	}

	if len(segs) == 1 {
		writeJSON(w, group)
		return
	}

	scope := "groups/" + strconv.FormatInt(group.ID, 10)
	switch {
	case segs[1] == "subgroups":
		children := []gitlab.Group{}
		for _, g := range f.groups {
			if g.ParentID == group.ID {
				children = append(children, g)
			}
		}
		writeJSON(w, children)
	case segs[1] == "access_tokens":
		f.tokenResource(w, r, scope)
	case segs[1] == "hooks" || strings.HasPrefix(segs[1], "hooks/"):
		if f.groupHooks404 {
			writeError(w, http.StatusNotFound, "404 Not Found")
			return
		}
		f.hookResource(w, r, scope, segs[1])
	default:
		writeError(w, http.StatusNotFound, "404 Not Found")
	}
}

func (f *fakeGitLab) projectResource(w http.ResponseWriter, r *http.Request, rest string) {
	segs := strings.SplitN(rest, "/", 2)
	identifier, _ := url.PathUnescape(segs[0])

	project, ok := f.lookupProject(identifier)
	if !ok {
		writeError(w, http.StatusNotFound, "404 Project Not Found")
		return
	}

	if len(segs) == 1 {
		writeJSON(w, project)
		return
	}

	scope := "projects/" + strconv.FormatInt(project.ID, 10)
	switch {
	case segs[1] == "access_tokens":
		f.tokenResource(w, r, scope)
	case segs[1] == "hooks" || strings.HasPrefix(segs[1], "hooks/"):
		f.hookResource(w, r, scope, segs[1])
	default:
		writeError(w, http.StatusNotFound, "404 Not Found")
	}
}

func (f *fakeGitLab) tokenResource(w http.ResponseWriter, r *http.Request, scope string) {
	switch r.Method {
	case http.MethodGet:
		list := f.tokens[scope]
		if list == nil {
			list = []gitlab.AccessToken{}
		}
		writeJSON(w, list)
	case http.MethodPost:
		var payload struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&payload)
		f.nextID++
		token := gitlab.AccessToken{ID: f.nextID, Name: payload.Name}
		f.tokens[scope] = append(f.tokens[scope], token)
		token.Token = "glpat-" + scope + "-" + strconv.FormatInt(f.nextID, 10)
		writeJSON(w, token)
	}
}

func (f *fakeGitLab) hookResource(w http.ResponseWriter, r *http.Request, scope, sub string) {
	switch r.Method {
	case http.MethodGet:
		list := f.hooks[scope]
		if list == nil {
			list = []gitlab.Hook{}
		}
		writeJSON(w, list)
	case http.MethodPost:
		var hook gitlab.Hook
		json.NewDecoder(r.Body).Decode(&hook)
		f.nextID++
		hook.ID = f.nextID
		f.hooks[scope] = append(f.hooks[scope], hook)
		writeJSON(w, hook)
	case http.MethodPut:
		idStr := strings.TrimPrefix(sub, "hooks/")
		hookID, _ := strconv.ParseInt(idStr, 10, 64)
		var update gitlab.Hook
		json.NewDecoder(r.Body).Decode(&update)
		for i := range f.hooks[scope] {
			if f.hooks[scope][i].ID == hookID {
				update.ID = hookID
				f.hooks[scope][i] = update
				writeJSON(w, update)
				return
			}
		}
		writeError(w, http.StatusNotFound, "404 Hook Not Found")
	}
}

func (f *fakeGitLab) lookupGroup(identifier string) (gitlab.Group, bool) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		g, ok := f.groups[id]
		return g, ok
	}
	for _, g := range f.groups {
		if g.FullPath == identifier {
			return g, true
		}
	}
	return gitlab.Group{}, false
}

func (f *fakeGitLab) lookupProject(identifier string) (gitlab.Project, bool) {
	if id, err := strconv.ParseInt(identifier, 10, 64); err == nil {
		p, ok := f.projects[id]
		return p, ok
	}
	for _, p := range f.projects {
		if p.PathWithNamespace == identifier {
			return p, true
		}
	}
	return gitlab.Project{}, false
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}

// newTestProvisioner wires a Provisioner against the fake API.
func newTestProvisioner(t *testing.T, fake *fakeGitLab, cfg *config.Config) *Provisioner {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	cfg.GitLabBaseURL = server.URL
	client := gitlab.NewClient(server.URL, "env-pat-token",
		gitlab.WithRetryPolicy(1, time.Millisecond), gitlab.WithDryRun(cfg.DryRun))
	return New(cfg, client, "env-pat-token")
}

func baseConfig() *config.Config {
	return &config.Config{
		AuthMode: config.AuthGroupTokenPerRootGroup,
		Webhooks: config.WebhookConfig{
			MergeRequestURL: "https://hooks.example.com/gitlab",
			SecretToken:     "fixed-secret",
		},
		TokenExpiresInDays: 30,
	}
}
