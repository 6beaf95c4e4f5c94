package gitlab

// User is the authenticated API user.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Group is a GitLab group or subgroup.
type Group struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	FullPath string `json:"full_path"`
	ParentID int64  `json:"parent_id"`
}

// Namespace is the group or user a project lives under.
type Namespace struct {
	ID       int64  `json:"id"`
	Kind     string `json:"kind"`
	FullPath string `json:"full_path"`
}

// Project is a GitLab project.
type Project struct {
	ID                int64     `json:"id"`
	PathWithNamespace string    `json:"path_with_namespace"`
	Namespace         Namespace `json:"namespace"`
}

// AccessToken is a group or project access token. Token carries the secret
// value and is only populated in the create response.
type AccessToken struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Revoked     bool     `json:"revoked"`
	ExpiresAt   string   `json:"expires_at"`
	Scopes      []string `json:"scopes"`
	AccessLevel int      `json:"access_level"`
	Token       string   `json:"token,omitempty"`
}

// Hook is a group or project webhook.
type Hook struct {
	ID                    int64  `json:"id"`
	URL                   string `json:"url"`
	EnableSSLVerification bool   `json:"enable_ssl_verification"`
	Token                 string `json:"token"`
	PushEvents            bool   `json:"push_events"`
	MergeRequestsEvents   bool   `json:"merge_requests_events"`
	NoteEvents            bool   `json:"note_events"`
	PipelineEvents        bool   `json:"pipeline_events"`
	Name                  string `json:"name"`
	Description           string `json:"description"`
}
