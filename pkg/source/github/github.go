// Package github fetches repository trees from the GitHub API.
//
// A fetch resolves the repository's default branch, lists the full tree, and
// downloads the files the caller asks for (manifest files, selected by name).
// Credentials are applied per request and never stored on the client.
package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/depsight/depsight/pkg/errors"
)

var repoURLPattern = regexp.MustCompile(`^(?:https?://|git@)?github\.com[:/]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// maxFileSize caps individual manifest downloads. Manifests are small; a
// larger blob at a manifest path is skipped rather than fetched.
const maxFileSize = 2 << 20 // 2MB

// File is one downloaded repository file.
type File struct {
	Path    string
	Content []byte
}

// Tree is the fetched slice of a repository: the manifest files plus enough
// identity to label reports. Warnings record manifest files that were listed
// but could not be downloaded.
type Tree struct {
	Owner    string
	Repo     string
	Ref      string // default branch the tree was read from
	Files    []File
	Warnings []errors.Warning
}

// FullName returns "owner/repo".
func (t *Tree) FullName() string { return t.Owner + "/" + t.Repo }

// Fetcher downloads repository content from the GitHub API.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
}

// NewFetcher creates a fetcher against the public GitHub API.
func NewFetcher() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://api.github.com",
	}
}

// ParseRepoURL extracts owner and repository name from a GitHub URL.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(repoURL)
	if m == nil {
		return "", "", errors.New(errors.ErrCodeInvalidInput, "not a GitHub repository URL: %s", repoURL)
	}
	return m[1], m[2], nil
}

// Fetch downloads the files of repoURL's default branch for which want
// returns true (called with the file's base name). The token, when non-empty,
// is sent as a bearer credential on every request of this fetch only.
//
// Unreachable, missing, or unauthorized repositories yield a FETCH_FAILED
// error; transient network failures and 5xx responses are retried.
func (f *Fetcher) Fetch(ctx context.Context, repoURL, token string, want func(name string) bool) (*Tree, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	branch, err := f.defaultBranch(ctx, owner, repo, token)
	if err != nil {
		return nil, err
	}

	entries, err := f.listTree(ctx, owner, repo, branch, token)
	if err != nil {
		return nil, err
	}

	tree := &Tree{Owner: owner, Repo: repo, Ref: branch}
	for _, e := range entries {
		if e.Type != "blob" || e.Size > maxFileSize || !want(baseName(e.Path)) {
			continue
		}
		content, err := f.fetchRaw(ctx, owner, repo, e.Path, branch, token)
		if err != nil {
			// One unreadable file is not fatal to the fetch, but the caller
			// learns what was skipped.
			tree.Warnings = append(tree.Warnings, errors.Warnf(errors.WarnFetch,
				e.Path, "file could not be downloaded: %v", errors.UserMessage(err)))
			continue
		}
		tree.Files = append(tree.Files, File{Path: e.Path, Content: content})
	}
	return tree, nil
}

type repoResponse struct {
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

func (f *Fetcher) defaultBranch(ctx context.Context, owner, repo, token string) (string, error) {
	var data repoResponse
	url := fmt.Sprintf("%s/repos/%s/%s", f.baseURL, owner, repo)
	if err := f.getJSON(ctx, url, token, "", &data); err != nil {
		return "", err
	}
	if data.DefaultBranch == "" {
		data.DefaultBranch = "main"
	}
	return data.DefaultBranch, nil
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size"`
}

type treeResponse struct {
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

func (f *Fetcher) listTree(ctx context.Context, owner, repo, ref, token string) ([]treeEntry, error) {
	var data treeResponse
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1", f.baseURL, owner, repo, ref)
	if err := f.getJSON(ctx, url, token, "", &data); err != nil {
		return nil, err
	}
	return data.Tree, nil
}

func (f *Fetcher) fetchRaw(ctx context.Context, owner, repo, path, ref, token string) ([]byte, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s", f.baseURL, owner, repo, path, ref)
	body, err := f.do(ctx, url, token, "application/vnd.github.v3.raw")
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(io.LimitReader(body, maxFileSize))
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
