package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/pamudu-ranasinghe/virtualme/tools"
)

const apiBase = "https://api.github.com"

// Client wraps the GitHub REST v3 API for a single user's public repos.
type Client struct {
	Token      string
	User       string
	BaseURL    string
	HTTPClient *http.Client
}

type repo struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Language      string `json:"language"`
	Stars         int    `json:"stargazers_count"`
	UpdatedAt     string `json:"updated_at"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return apiBase
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) get(ctx context.Context, path, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.base()+path, nil)
	if err != nil {
		return nil, err
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github API returned status %d for %s", resp.StatusCode, path)
	}
	return body, nil
}

func (c *Client) listRepos(ctx context.Context, limit int) ([]repo, error) {
	body, err := c.get(ctx, fmt.Sprintf("/users/%s/repos?sort=updated&per_page=%d", c.User, limit), "")
	if err != nil {
		return nil, err
	}
	var repos []repo
	if err := json.Unmarshal(body, &repos); err != nil {
		return nil, fmt.Errorf("parsing repo list: %w", err)
	}
	return repos, nil
}

// SearchTool lists the user's repositories and ranks them by keyword matches
// in name and description.
type SearchTool struct {
	Client *Client
}

func (t *SearchTool) Name() string { return tools.GitHubSearch }

func (t *SearchTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	limit := intArg(args, "limit", 10)
	repos, err := t.Client.listRepos(ctx, 50)
	if err != nil {
		return "", err
	}

	keywords := splitKeywords(args["keywords"])
	type scored struct {
		repo    repo
		matches []string
	}
	var ranked []scored
	for _, r := range repos {
		if len(keywords) == 0 {
			ranked = append(ranked, scored{repo: r})
			continue
		}
		name := strings.ToLower(r.Name)
		desc := strings.ToLower(r.Description)
		var matches []string
		for _, kw := range keywords {
			if strings.Contains(name, kw) {
				matches = append(matches, "name:"+kw)
			}
			if strings.Contains(desc, kw) {
				matches = append(matches, "desc:"+kw)
			}
		}
		if len(matches) > 0 {
			ranked = append(ranked, scored{repo: r, matches: matches})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return len(ranked[i].matches) > len(ranked[j].matches) })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if len(ranked) == 0 {
		return fmt.Sprintf("no repositories matching %v", keywords), nil
	}
	var b strings.Builder
	b.WriteString("--- GITHUB: Repositories ---\n")
	for _, s := range ranked {
		desc := s.repo.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "- %s (%s, %d stars): %s\n  %s\n", s.repo.Name, s.repo.Language, s.repo.Stars, desc, s.repo.HTMLURL)
		if len(s.matches) > 0 {
			fmt.Fprintf(&b, "  matches: %s\n", strings.Join(s.matches, ", "))
		}
	}
	return b.String(), nil
}

// ReadTool fetches the README, or an arbitrary file, from a repository's
// default branch.
type ReadTool struct {
	Client *Client
}

func (t *ReadTool) Name() string { return tools.GitHubRead }

func (t *ReadTool) Invoke(ctx context.Context, args map[string]string) (string, error) {
	repoName := strings.TrimSpace(args["repo"])
	if repoName == "" {
		return "", fmt.Errorf("missing required argument: repo")
	}
	path := strings.TrimSpace(args["path"])

	var endpoint, label string
	if path == "" {
		endpoint = fmt.Sprintf("/repos/%s/%s/readme", t.Client.User, repoName)
		label = fmt.Sprintf("--- GITHUB README: %s ---", repoName)
	} else {
		endpoint = fmt.Sprintf("/repos/%s/%s/contents/%s", t.Client.User, repoName, strings.TrimLeft(path, "/"))
		label = fmt.Sprintf("--- GITHUB FILE: %s/%s ---", repoName, path)
	}
	body, err := t.Client.get(ctx, endpoint, "application/vnd.github.raw+json")
	if err != nil {
		return "", err
	}
	return label + "\n" + string(body), nil
}

func intArg(args map[string]string, key string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(args[key])); err == nil && v > 0 {
		return v
	}
	return def
}

func splitKeywords(v string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
