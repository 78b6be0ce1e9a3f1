package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var (
	// ErrInvalidRepoURL is returned when a URL does not name a GitHub repository.
	ErrInvalidRepoURL = errors.New("invalid github repository url")

	// ErrRepoNotFound is returned when the repository does not exist or is
	// not accessible.
	ErrRepoNotFound = errors.New("repository not found")
)

var repoURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.)?github\.com/([\w.-]+)/([\w.-]+?)(?:\.git)?/?$`)

// ParseRepoURL extracts owner and repo from a GitHub repository URL.
func ParseRepoURL(url string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidRepoURL, url)
	}
	return m[1], m[2], nil
}

// Fetcher downloads GitHub repositories as zipballs and extracts them into a
// session directory.
type Fetcher struct {
	baseURL    string
	token      string
	maxBytes   int64
	httpClient *http.Client
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithAPIBaseURL overrides the GitHub API base URL.
func WithAPIBaseURL(url string) FetcherOption {
	return func(f *Fetcher) {
		f.baseURL = url
	}
}

// NewFetcher creates a fetcher. token may be empty; when set it is sent as a
// bearer token, raising rate limits and allowing private repositories.
func NewFetcher(token string, maxBytes int64, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		baseURL:  "https://api.github.com",
		token:    token,
		maxBytes: maxBytes,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type repoInfo struct {
	SizeKB        int64  `json:"size"`
	DefaultBranch string `json:"default_branch"`
}

// Fetch downloads the default branch of the repository at repoURL and
// extracts it under destDir. It returns the directory containing the
// repository's files (GitHub zipballs nest everything in one top-level
// directory).
func (f *Fetcher) Fetch(ctx context.Context, repoURL, destDir string) (string, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	info, err := f.repoInfo(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	if f.maxBytes > 0 && info.SizeKB*1024 > f.maxBytes {
		return "", fmt.Errorf("%w: repository is %d KB", ErrArchiveTooLarge, info.SizeKB)
	}

	archivePath, err := f.downloadZipball(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	defer os.Remove(archivePath)

	if err := ExtractZip(archivePath, destDir, f.maxBytes); err != nil {
		return "", err
	}
	return sourceRoot(destDir)
}

func (f *Fetcher) repoInfo(ctx context.Context, owner, repo string) (*repoInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/%s", f.baseURL, owner, repo)
	resp, err := f.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s/%s", ErrRepoNotFound, owner, repo)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github api returned status %d for %s/%s", resp.StatusCode, owner, repo)
	}

	var info repoInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode repository info: %w", err)
	}
	return &info, nil
}

func (f *Fetcher) downloadZipball(ctx context.Context, owner, repo string) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/zipball", f.baseURL, owner, repo)
	resp, err := f.get(ctx, url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("zipball download returned status %d for %s/%s", resp.StatusCode, owner, repo)
	}

	tmp, err := os.CreateTemp("", "codelens-zipball-*.zip")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	limit := f.maxBytes
	if limit <= 0 {
		limit = 1 << 30
	}
	n, err := io.Copy(tmp, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to download zipball: %w", err)
	}
	if n > limit {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: zipball larger than %d bytes", ErrArchiveTooLarge, limit)
	}
	return tmp.Name(), nil
}

func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request failed: %w", err)
	}
	return resp, nil
}

// sourceRoot returns the sole top-level directory of dir when dir contains
// nothing else, otherwise dir itself.
func sourceRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}
