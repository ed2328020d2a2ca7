package tracker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

// GitHubSource reads open issues of one repo as the tracked-problem view.
type GitHubSource struct {
	logger *slog.Logger
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubSource creates a task source over the given repo. An empty token
// yields an unauthenticated client, which works for public repos.
func NewGitHubSource(log *slog.Logger, token, owner, repo string) *GitHubSource {
	if log == nil {
		log = slog.Default()
	}
	httpClient := oauth2.NewClient(context.Background(),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	if token == "" {
		httpClient = nil
	}
	return &GitHubSource{
		logger: log.With(slog.String("service", "tracker")),
		client: github.NewClient(httpClient),
		owner:  owner,
		repo:   repo,
	}
}

// ListCurrentTasks returns all open issues, following pagination.
func (s *GitHubSource) ListCurrentTasks(ctx context.Context) ([]Task, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("github source not configured")
	}
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	tasks := make([]Task, 0)
	for {
		issues, resp, err := s.client.Issues.ListByRepo(ctx, s.owner, s.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("list issues: %w", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			tasks = append(tasks, Task{
				ID:    fmt.Sprintf("%d", issue.GetNumber()),
				Title: issue.GetTitle(),
				URL:   issue.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return tasks, nil
}
