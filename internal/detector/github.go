// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tombee/relay/internal/provider"
	"github.com/tombee/relay/internal/schema"
	"github.com/tombee/relay/internal/watermark"
)

// GitHubNewIssue detects new issues opened on one repository. The repository
// configuration field is "owner/repo"; the watermark is the issue's
// created_at timestamp. Pull requests surface in the issues API too and are
// skipped.
type GitHubNewIssue struct {
	links     provider.Links
	requester provider.Requester
	store     watermark.Store
	logger    *slog.Logger
}

// NewGitHubNewIssue creates the github_new_issue detector.
func NewGitHubNewIssue(links provider.Links, requester provider.Requester, store watermark.Store, logger *slog.Logger) *GitHubNewIssue {
	return &GitHubNewIssue{
		links:     links,
		requester: requester,
		store:     store,
		logger:    logger.With(slog.String("action", "github_new_issue")),
	}
}

func (d *GitHubNewIssue) Name() string { return "github_new_issue" }

func (d *GitHubNewIssue) Supports(actionName string) bool { return actionName == d.Name() }

func (d *GitHubNewIssue) Provider() string { return provider.GitHub }

func (d *GitHubNewIssue) Interval() time.Duration { return 30 * time.Second }

func (d *GitHubNewIssue) Fields() []schema.Field {
	return []schema.Field{
		{Name: "repository", Type: schema.String, Required: true, Description: "Repository to watch as owner/repo"},
	}
}

func (d *GitHubNewIssue) Resource(config map[string]any) string {
	return configString(config, "repository")
}

func (d *GitHubNewIssue) Detect(ctx context.Context, userID string, config map[string]any) Event {
	repository := configString(config, "repository")
	if repository == "" || !strings.Contains(repository, "/") {
		return Event{Status: Unavailable}
	}

	linked, err := d.links.HasLinked(ctx, userID, provider.GitHub)
	if err != nil || !linked {
		return Event{Status: Unavailable}
	}

	obs, err := d.fetchLatest(ctx, userID, repository)
	if err != nil {
		d.logger.Warn("poll failed",
			slog.String("user_id", userID),
			slog.String("repository", repository),
			slog.String("error", err.Error()))
		return Event{Status: Unchanged}
	}

	key := watermark.Key{Provider: provider.GitHub, UserID: userID, Resource: repository}
	return advance(ctx, d.store, key, obs, d.logger)
}

func (d *GitHubNewIssue) fetchLatest(ctx context.Context, userID, repository string) (observation, error) {
	// per_page is 5 rather than 1 so a recently opened pull request cannot
	// hide the most recent real issue.
	resp, err := d.requester.Do(ctx, provider.GitHub, userID, &provider.Request{
		Method: http.MethodGet,
		Path:   fmt.Sprintf("/repos/%s/issues", repository),
		Query: url.Values{
			"per_page":  {"5"},
			"sort":      {"created"},
			"direction": {"desc"},
			"state":     {"all"},
		},
	})
	if err != nil {
		return observation{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return observation{}, fmt.Errorf("github API returned status %d", resp.StatusCode)
	}

	var issues []githubIssue
	if err := json.Unmarshal(resp.Body, &issues); err != nil {
		return observation{}, fmt.Errorf("failed to parse issues: %w", err)
	}

	for _, issue := range issues {
		if issue.PullRequest != nil {
			continue
		}
		return observation{
			marker: issue.CreatedAt,
			data:   d.extract(issue, repository),
		}, nil
	}

	return observation{empty: true}, nil
}

func (d *GitHubNewIssue) extract(issue githubIssue, repository string) map[string]string {
	author := issue.User.Login
	if author == "" {
		author = "Unknown"
	}

	return map[string]string{
		"GITHUB_ISSUE_NUMBER": strconv.Itoa(issue.Number),
		"GITHUB_ISSUE_TITLE":  issue.Title,
		"GITHUB_ISSUE_URL":    issue.HTMLURL,
		"GITHUB_ISSUE_AUTHOR": author,
		"GITHUB_ISSUE_STATE":  issue.State,
		"GITHUB_ISSUE_BODY":   issue.Body,
		"GITHUB_CREATED_AT":   issue.CreatedAt,
		"GITHUB_REPOSITORY":   repository,
	}
}

func (d *GitHubNewIssue) Placeholders() []PlaceholderInfo {
	return []PlaceholderInfo{
		{Key: "GITHUB_ISSUE_NUMBER", Description: "Issue number within the repository", Example: "42"},
		{Key: "GITHUB_ISSUE_TITLE", Description: "Issue title", Example: "Crash on empty input"},
		{Key: "GITHUB_ISSUE_URL", Description: "Web link to the issue", Example: "https://github.com/octocat/hello-world/issues/42"},
		{Key: "GITHUB_ISSUE_AUTHOR", Description: "Login of the user who opened the issue", Example: "octocat"},
		{Key: "GITHUB_ISSUE_STATE", Description: "Issue state", Example: "open"},
		{Key: "GITHUB_ISSUE_BODY", Description: "Issue body text", Example: "Steps to reproduce: ..."},
		{Key: "GITHUB_CREATED_AT", Description: "When the issue was opened (ISO-8601)", Example: "2023-12-10T16:00:00Z"},
		{Key: "GITHUB_REPOSITORY", Description: "Repository the issue belongs to", Example: "octocat/hello-world"},
	}
}

// GitHub API response types

type githubIssue struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	State     string `json:"state"`
	HTMLURL   string `json:"html_url"`
	CreatedAt string `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request,omitempty"`
}
