// Package supabase talks to the Supabase Management API: SQL execution and
// edge function deploys. It also owns the on-disk conventions for
// functions and migrations.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultAPIURL is the Management API base.
const DefaultAPIURL = "https://api.supabase.com"

const functionsPrefix = "supabase/functions/"

// IsServerFunction reports whether an app-relative path belongs to an
// edge function. Shared helper folders (leading underscore) do not.
func IsServerFunction(p string) bool {
	name := FunctionName(p)
	return name != "" && !strings.HasPrefix(name, "_")
}

// FunctionName extracts the function name from
// supabase/functions/<name>/..., or "" for other paths.
func FunctionName(p string) string {
	p = strings.TrimPrefix(filepath.ToSlash(path.Clean(filepath.ToSlash(p))), "./")
	if !strings.HasPrefix(p, functionsPrefix) {
		return ""
	}
	rest := strings.TrimPrefix(p, functionsPrefix)
	name, _, found := strings.Cut(rest, "/")
	if !found {
		return ""
	}
	return name
}

// Client is a Management API client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
	Logger      *slog.Logger
}

// ErrNoToken is returned when no access token is configured.
var ErrNoToken = errors.New("supabase access token not configured")

// NewClient builds a Client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultAPIURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.AccessToken,
		http:    opts.HTTPClient,
		logger:  opts.Logger,
	}
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supabase api: status %d: %s", e.Status, e.Body)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (c *Client) projectURL(projectID string, parts ...string) string {
	return c.baseURL + "/v1/projects/" + url.PathEscape(projectID) + "/" + strings.Join(parts, "/")
}

// ExecuteSQL runs query against the project's database and returns the
// raw JSON result.
func (c *Client) ExecuteSQL(ctx context.Context, projectID, query string) (string, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.projectURL(projectID, "database", "query"), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("execute sql: %w", err)
	}
	c.logger.Info("executed sql", "project", projectID, "bytes", len(query))
	return string(body), nil
}

// DeployFunction uploads source as the entrypoint of function name.
func (c *Client) DeployFunction(ctx context.Context, projectID, name, source string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	meta, err := json.Marshal(map[string]any{
		"name":            name,
		"entrypoint_path": "index.ts",
		"verify_jwt":      false,
	})
	if err != nil {
		return err
	}
	if err := mw.WriteField("metadata", string(meta)); err != nil {
		return err
	}
	fw, err := mw.CreateFormFile("file", "index.ts")
	if err != nil {
		return err
	}
	if _, err := io.WriteString(fw, source); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	u := c.projectURL(projectID, "functions", "deploy") + "?slug=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if _, err := c.do(req); err != nil {
		return fmt.Errorf("deploy function %s: %w", name, err)
	}
	c.logger.Info("deployed function", "project", projectID, "function", name)
	return nil
}

// DeleteFunction removes function name. A missing function is not an
// error.
func (c *Client) DeleteFunction(ctx context.Context, projectID, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.projectURL(projectID, "functions", url.PathEscape(name)), nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete function %s: %w", name, err)
	}
	c.logger.Info("deleted function", "project", projectID, "function", name)
	return nil
}

// MigrationsDir is where migration files live, relative to the app root.
const MigrationsDir = "supabase/migrations"

var (
	migrationNumRe = regexp.MustCompile(`^(\d+)_`)
	slugRe         = regexp.MustCompile(`[^a-z0-9]+`)
)

// WriteMigration stores query as the next numbered migration under
// appDir and returns its app-relative path.
func WriteMigration(appDir, query, description string) (string, error) {
	dir := filepath.Join(appDir, filepath.FromSlash(MigrationsDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var nums []int
	for _, e := range entries {
		if m := migrationNumRe.FindStringSubmatch(e.Name()); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				nums = append(nums, n)
			}
		}
	}
	next := 0
	if len(nums) > 0 {
		sort.Ints(nums)
		next = nums[len(nums)-1] + 1
	}

	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(description), "_"), "_")
	if slug == "" {
		slug = "migration"
	}
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "_")
	}
	name := fmt.Sprintf("%04d_%s.sql", next, slug)
	content := strings.TrimSpace(query) + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		return "", err
	}
	return path.Join(MigrationsDir, name), nil
}
