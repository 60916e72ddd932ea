package github

import (
	"context"

	"github.com/shurcooL/githubv4"

	"github.com/navikt/appsec-orgbot/internal/models"
)

// ListTeams returns one page of the organization's teams. The cursor is the
// GraphQL endCursor of the previous page.
func (c *Client) ListTeams(ctx context.Context, org, cursor string) (Page[models.Team], error) {
	var q struct {
		Organization struct {
			Teams struct {
				Nodes []struct {
					DatabaseID int64 `graphql:"databaseId"`
					Name       string
					Slug       string
				}
				PageInfo struct {
					EndCursor   githubv4.String
					HasNextPage bool
				}
			} `graphql:"teams(first: 100, after: $cursor)"`
		} `graphql:"organization(login: $org)"`
	}
	variables := map[string]interface{}{
		"org":    githubv4.String(org),
		"cursor": (*githubv4.String)(nil),
	}
	if cursor != "" {
		variables["cursor"] = githubv4.NewString(githubv4.String(cursor))
	}
	if err := c.graphql.Query(ctx, &q, variables); err != nil {
		return Page[models.Team]{}, err
	}

	teams := q.Organization.Teams
	page := Page[models.Team]{Items: make([]models.Team, 0, len(teams.Nodes))}
	for _, node := range teams.Nodes {
		page.Items = append(page.Items, models.Team{ID: node.DatabaseID, Name: node.Name, Slug: node.Slug})
	}
	if teams.PageInfo.HasNextPage {
		page.NextCursor = string(teams.PageInfo.EndCursor)
	}
	return page, nil
}

// Viewer returns the account the client is authenticated as.
func (c *Client) Viewer(ctx context.Context) (models.User, error) {
	var q struct {
		Viewer struct {
			Login      string
			DatabaseID int64 `graphql:"databaseId"`
		}
	}
	if err := c.graphql.Query(ctx, &q, nil); err != nil {
		return models.User{}, err
	}
	return models.User{ID: q.Viewer.DatabaseID, Login: q.Viewer.Login}, nil
}
