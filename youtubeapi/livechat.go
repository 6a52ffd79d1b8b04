package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	yt "google.golang.org/api/youtube/v3"
)

// ErrNotLive is returned when a channel has no active live chat.
var ErrNotLive = errors.New("channel is not live")

// MinPollInterval bounds how fast a chat is polled when the API suggests less.
const MinPollInterval = 2 * time.Second

// LiveChat performs the live chat calls for one authorized client.
type LiveChat struct {
	svc *yt.Service
}

// ChatMessage is one text message read from a live chat.
type ChatMessage struct {
	ID          string
	AuthorID    string
	AuthorName  string
	Text        string
	PublishedAt time.Time
}

// Page is one poll of a live chat.
type Page struct {
	Messages      []ChatMessage
	NextPageToken string
	PollInterval  time.Duration
}

// MyChannelID returns the channel id of the authorized account.
func (lc *LiveChat) MyChannelID(ctx context.Context) (string, error) {
	res, err := lc.svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube channels.list mine: %w", err)
	}
	if len(res.Items) == 0 {
		return "", errors.New("authorized account has no channel")
	}
	return res.Items[0].Id, nil
}

// ResolveChannel maps a handle (without '@') to a channel id.
func (lc *LiveChat) ResolveChannel(ctx context.Context, handle string) (string, error) {
	res, err := lc.svc.Channels.List([]string{"id"}).ForHandle("@" + handle).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube channels.list @%s: %w", handle, err)
	}
	if len(res.Items) == 0 {
		return "", fmt.Errorf("youtube channel @%s not found", handle)
	}
	return res.Items[0].Id, nil
}

// ActiveLiveChatID finds the live chat of the channel's current broadcast.
func (lc *LiveChat) ActiveLiveChatID(ctx context.Context, channelID string) (string, error) {
	search, err := lc.svc.Search.List([]string{"id"}).
		ChannelId(channelID).
		EventType("live").
		Type("video").
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube search live %s: %w", channelID, err)
	}
	if len(search.Items) == 0 || search.Items[0].Id == nil || search.Items[0].Id.VideoId == "" {
		return "", ErrNotLive
	}
	videoID := search.Items[0].Id.VideoId
	videos, err := lc.svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("youtube videos.list %s: %w", videoID, err)
	}
	if len(videos.Items) == 0 || videos.Items[0].LiveStreamingDetails == nil || videos.Items[0].LiveStreamingDetails.ActiveLiveChatId == "" {
		return "", ErrNotLive
	}
	return videos.Items[0].LiveStreamingDetails.ActiveLiveChatId, nil
}

// Poll reads the messages after pageToken. An empty token starts from the
// chat's recent backlog.
func (lc *LiveChat) Poll(ctx context.Context, chatID, pageToken string) (*Page, error) {
	call := lc.svc.LiveChatMessages.List(chatID, []string{"id", "snippet", "authorDetails"}).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("youtube liveChatMessages.list: %w", err)
	}
	page := &Page{
		NextPageToken: res.NextPageToken,
		PollInterval:  time.Duration(res.PollingIntervalMillis) * time.Millisecond,
	}
	if page.PollInterval < MinPollInterval {
		page.PollInterval = MinPollInterval
	}
	for _, item := range res.Items {
		if item == nil || item.Snippet == nil || item.Snippet.Type != "textMessageEvent" {
			continue
		}
		m := ChatMessage{ID: item.Id, Text: item.Snippet.DisplayMessage}
		if item.Snippet.TextMessageDetails != nil && item.Snippet.TextMessageDetails.MessageText != "" {
			m.Text = item.Snippet.TextMessageDetails.MessageText
		}
		if item.AuthorDetails != nil {
			m.AuthorID = item.AuthorDetails.ChannelId
			m.AuthorName = item.AuthorDetails.DisplayName
		}
		if ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			m.PublishedAt = ts
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}

// Send posts a text message to the live chat.
func (lc *LiveChat) Send(ctx context.Context, chatID, text string) error {
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId: chatID,
			Type:       "textMessageEvent",
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	if _, err := lc.svc.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("youtube liveChatMessages.insert: %w", err)
	}
	return nil
}

// Subscribe subscribes the authorized account to channelID. already is true
// when the subscription existed before the call.
func (lc *LiveChat) Subscribe(ctx context.Context, channelID string) (already bool, err error) {
	sub := &yt.Subscription{
		Snippet: &yt.SubscriptionSnippet{
			ResourceId: &yt.ResourceId{Kind: "youtube#channel", ChannelId: channelID},
		},
	}
	_, err = lc.svc.Subscriptions.Insert([]string{"snippet"}, sub).Context(ctx).Do()
	if err == nil {
		return false, nil
	}
	if hasReason(err, "subscriptionDuplicate") {
		return true, nil
	}
	return false, fmt.Errorf("youtube subscriptions.insert: %w", err)
}

func hasReason(err error, reason string) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	for _, item := range gerr.Errors {
		if item.Reason == reason {
			return true
		}
	}
	return strings.Contains(gerr.Message, reason)
}
