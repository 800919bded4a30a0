package core

import "strings"

// Location points at a file at a specific commit in a hosted git repository.
type Location struct {
	// RepoURL is the https base URL without a .git suffix.
	RepoURL  string `json:"repo_url"`
	CommitID string `json:"commit_id"`
	// Path is repository-relative with forward slashes.
	Path     string `json:"path"`
}

// URL renders the location as <repo>/blob/<commit>/<path>.
func (l Location) URL() string {
	return strings.TrimSuffix(l.RepoURL, "/") + "/blob/" + l.CommitID + "/" + strings.TrimPrefix(l.Path, "/")
}
