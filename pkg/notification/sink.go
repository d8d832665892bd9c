// Package notification reports workflow, sequencing run and batch run status changes.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/portalflow/pkg/httpclient"
)

const (
	ColorGreen  = "#36a64f"
	ColorRed    = "#ff0000"
	ColorBlue   = "#439FE0"
	ColorGray   = "#dddddd"
	ColorOrange = "#ff9900"
)

// Field is a short key/value shown inside an attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type Attachment struct {
	Fallback string  `json:"fallback"`
	Color    string  `json:"color"`
	Pretext  string  `json:"pretext,omitempty"`
	Title    string  `json:"title"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
	TS       int64   `json:"ts"`
}

// Message is one notification. Topic is the headline.
type Message struct {
	Sender      string
	Topic       string
	Attachments []Attachment
}

// Sink delivers messages. A nil error means the message was accepted.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}

// SlackSink posts messages to a Slack incoming webhook.
type SlackSink struct {
	client     *httpclient.Client
	webhookURL string
	channel    string
}

func NewSlackSink(webhookURL, channel string, logger *slog.Logger) *SlackSink {
	return &SlackSink{
		client:     httpclient.New(10*time.Second, httpclient.Retry{Attempts: 2, Delay: time.Second}, nil, logger),
		webhookURL: webhookURL,
		channel:    channel,
	}
}

type slackPayload struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username"`
	Text        string       `json:"text"`
	IconEmoji   string       `json:"icon_emoji,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

func (s *SlackSink) Send(ctx context.Context, msg Message) error {
	err := s.client.Do(ctx, http.MethodPost, s.webhookURL, slackPayload{
		Channel:     s.channel,
		Username:    msg.Sender,
		Text:        "*" + msg.Topic + "*",
		IconEmoji:   ":dna:",
		Attachments: msg.Attachments,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to call slack webhook: %w", err)
	}

	return nil
}

// LogSink writes messages to the logger. It is used when no webhook is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("module", "notification")}
}

func (s *LogSink) Send(ctx context.Context, msg Message) error {
	for _, a := range msg.Attachments {
		s.logger.InfoContext(ctx, msg.Topic,
			"sender", msg.Sender,
			"color", a.Color,
			"pretext", a.Pretext,
			"title", a.Title,
			"text", a.Text,
		)
	}

	return nil
}
