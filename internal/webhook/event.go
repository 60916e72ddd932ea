package webhook

import (
	"encoding/json"
	"fmt"

	gh "github.com/google/go-github/v72/github"
)

// Name is a canonical event name: "<event-type>.<action>" when the payload
// carries an action, otherwise just "<event-type>".
type Name string

const (
	Push                   Name = "push"
	PullRequestOpened      Name = "pull_request.opened"
	PullRequestSynchronize Name = "pull_request.synchronize"
	IssueCommentCreated    Name = "issue_comment.created"
	Ping                   Name = "ping"

	// Any matches every delivery.
	Any Name = "*"
)

var knownNames = map[Name]bool{
	Push:                   true,
	PullRequestOpened:      true,
	PullRequestSynchronize: true,
	IssueCommentCreated:    true,
	Ping:                   true,
	Any:                    true,
}

// Known reports whether listeners may register for name.
func (n Name) Known() bool {
	return knownNames[n]
}

// Event is one verified webhook delivery.
type Event struct {
	Name       Name
	Type       string
	Action     string
	DeliveryID string
	Org        string
	Repo       string
	Payload    json.RawMessage
}

// envelope holds the fields shared by every payload shape we route on.
type envelope struct {
	Action     string `json:"action"`
	Repository *struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Organization *struct {
		Login string `json:"login"`
	} `json:"organization"`
}

// ParseEvent builds an Event from the event-type header and the raw body.
func ParseEvent(eventType string, body []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parsing %s payload: %w", eventType, err)
	}

	event := &Event{
		Name:    Name(eventType),
		Type:    eventType,
		Action:  env.Action,
		Payload: json.RawMessage(body),
	}
	if env.Action != "" {
		event.Name = Name(eventType + "." + env.Action)
	}
	if env.Repository != nil {
		event.Repo = env.Repository.Name
		event.Org = env.Repository.Owner.Login
	}
	if event.Org == "" && env.Organization != nil {
		event.Org = env.Organization.Login
	}
	return event, nil
}

// Parse decodes the payload into the matching go-github event type, for
// example *github.PushEvent.
func (e *Event) Parse() (interface{}, error) {
	return gh.ParseWebHook(e.Type, e.Payload)
}
