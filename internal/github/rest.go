package github

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	gh "github.com/google/go-github/v72/github"

	"github.com/navikt/appsec-orgbot/internal/models"
)

const (
	perPage      = 100
	rawMediaType = "application/vnd.github.raw+json"
)

func listOptions(cursor string) (gh.ListOptions, error) {
	opts := gh.ListOptions{PerPage: perPage}
	if cursor == "" {
		return opts, nil
	}
	page, err := strconv.Atoi(cursor)
	if err != nil {
		return opts, fmt.Errorf("invalid page cursor %q: %w", cursor, err)
	}
	opts.Page = page
	return opts, nil
}

func nextCursor(resp *gh.Response) string {
	if resp == nil || resp.NextPage == 0 {
		return ""
	}
	return strconv.Itoa(resp.NextPage)
}

// DownloadFile returns the content of a file at ref. The raw media type is
// requested so files above the contents API's 1 MB inline limit still come
// back whole.
func (c *Client) DownloadFile(ctx context.Context, owner, repo, path, ref string) ([]byte, error) {
	u := fmt.Sprintf("repos/%s/%s/contents/%s", owner, repo, (&url.URL{Path: path}).String())
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}
	req, err := c.rest.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", rawMediaType)

	var buf bytes.Buffer
	if _, err := c.rest.Do(ctx, req, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LatestCommit returns the SHA of the most recent commit on ref that touched path.
func (c *Client) LatestCommit(ctx context.Context, owner, repo, path, ref string) (string, error) {
	commits, _, err := c.rest.Repositories.ListCommits(ctx, owner, repo, &gh.CommitsListOptions{
		SHA:         ref,
		Path:        path,
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", err
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for %s/%s/%s", owner, repo, path)
	}
	return commits[0].GetSHA(), nil
}

func (c *Client) CreateCommitComment(ctx context.Context, owner, repo, sha, body string) error {
	_, _, err := c.rest.Repositories.CreateComment(ctx, owner, repo, sha, &gh.RepositoryComment{Body: gh.Ptr(body)})
	return err
}

// ListBlockedUsers returns one page of the logins blocked by org.
func (c *Client) ListBlockedUsers(ctx context.Context, org, cursor string) (Page[string], error) {
	opts, err := listOptions(cursor)
	if err != nil {
		return Page[string]{}, err
	}
	users, resp, err := c.rest.Organizations.ListBlockedUsers(ctx, org, &opts)
	if err != nil {
		return Page[string]{}, err
	}
	logins := make([]string, 0, len(users))
	for _, user := range users {
		logins = append(logins, user.GetLogin())
	}
	return Page[string]{Items: logins, NextCursor: nextCursor(resp)}, nil
}

func (c *Client) BlockUser(ctx context.Context, org, username string) error {
	_, err := c.rest.Organizations.BlockUser(ctx, org, username)
	return err
}

func (c *Client) UnblockUser(ctx context.Context, org, username string) error {
	_, err := c.rest.Organizations.UnblockUser(ctx, org, username)
	return err
}

// ListTeamMembers returns one page of member logins of the team identified by slug.
func (c *Client) ListTeamMembers(ctx context.Context, org, teamSlug, cursor string) (Page[string], error) {
	opts, err := listOptions(cursor)
	if err != nil {
		return Page[string]{}, err
	}
	users, resp, err := c.rest.Teams.ListTeamMembersBySlug(ctx, org, teamSlug, &gh.TeamListTeamMembersOptions{ListOptions: opts})
	if err != nil {
		return Page[string]{}, err
	}
	logins := make([]string, 0, len(users))
	for _, user := range users {
		logins = append(logins, user.GetLogin())
	}
	return Page[string]{Items: logins, NextCursor: nextCursor(resp)}, nil
}

func (c *Client) AddTeamMember(ctx context.Context, org, teamSlug, username string) error {
	_, _, err := c.rest.Teams.AddTeamMembershipBySlug(ctx, org, teamSlug, username, nil)
	return err
}

func (c *Client) RemoveTeamMember(ctx context.Context, org, teamSlug, username string) error {
	_, err := c.rest.Teams.RemoveTeamMembershipBySlug(ctx, org, teamSlug, username)
	return err
}

// ListPullRequestFiles returns one page of the files changed by a pull request.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, repo string, number int, cursor string) (Page[models.ChangedFile], error) {
	opts, err := listOptions(cursor)
	if err != nil {
		return Page[models.ChangedFile]{}, err
	}
	files, resp, err := c.rest.PullRequests.ListFiles(ctx, owner, repo, number, &opts)
	if err != nil {
		return Page[models.ChangedFile]{}, err
	}
	changed := make([]models.ChangedFile, 0, len(files))
	for _, file := range files {
		changed = append(changed, models.ChangedFile{Filename: file.GetFilename(), RawURL: file.GetRawURL()})
	}
	return Page[models.ChangedFile]{Items: changed, NextCursor: nextCursor(resp)}, nil
}

// ListIssueComments returns one page of comments on an issue or pull request.
func (c *Client) ListIssueComments(ctx context.Context, owner, repo string, number int, cursor string) (Page[models.Comment], error) {
	opts, err := listOptions(cursor)
	if err != nil {
		return Page[models.Comment]{}, err
	}
	comments, resp, err := c.rest.Issues.ListComments(ctx, owner, repo, number, &gh.IssueListCommentsOptions{ListOptions: opts})
	if err != nil {
		return Page[models.Comment]{}, err
	}
	out := make([]models.Comment, 0, len(comments))
	for _, comment := range comments {
		out = append(out, models.Comment{
			ID:     comment.GetID(),
			Author: comment.GetUser().GetLogin(),
			Body:   comment.GetBody(),
		})
	}
	return Page[models.Comment]{Items: out, NextCursor: nextCursor(resp)}, nil
}

func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := c.rest.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{Body: gh.Ptr(body)})
	return err
}

func (c *Client) EditIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	_, _, err := c.rest.Issues.EditComment(ctx, owner, repo, commentID, &gh.IssueComment{Body: gh.Ptr(body)})
	return err
}
