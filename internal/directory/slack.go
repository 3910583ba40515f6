package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/slack-go/slack"
)

// Slack shows the label as the channel topic. Channel names are limited to
// lowercase ASCII, so the topic is the only field that can carry the label.
type Slack struct {
	client *slack.Client
}

func NewSlack(client *slack.Client) *Slack {
	return &Slack{client: client}
}

func (s *Slack) Label(ctx context.Context, entityID string) (string, error) {
	ch, err := s.client.GetConversationInfoContext(ctx, &slack.GetConversationInfoInput{ChannelID: entityID})
	if err != nil {
		return "", slackError(err)
	}
	return ch.Topic.Value, nil
}

func (s *Slack) Rename(ctx context.Context, entityID, label string) error {
	if _, err := s.client.SetTopicOfConversationContext(ctx, entityID, label); err != nil {
		return slackError(err)
	}
	return nil
}

func slackError(err error) error {
	var resp slack.SlackErrorResponse
	if !errors.As(err, &resp) {
		return err
	}
	switch resp.Err {
	case "channel_not_found", "is_archived":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case "not_in_channel", "missing_scope", "restricted_action", "not_authed", "invalid_auth", "account_inactive":
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	}
	return err
}
