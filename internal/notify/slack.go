package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"spendguard/internal/model"
)

// SlackChannel posts limit alerts to a Slack incoming webhook. Transient
// failures (5xx, transport errors) are retried with exponential backoff;
// a 4xx means the webhook URL is wrong and is not worth retrying.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SlackChannel) Name() string { return "slack" }

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (s *SlackChannel) Send(ctx context.Context, payload model.AlertPayload) error {
	msg := slackMessage{
		Text: "🚨 API Spending Alert",
		Attachments: []slackAttachment{{
			Color: "danger",
			Fields: []slackField{{
				Title: "Hourly Spend Limit Exceeded",
				Value: formatSlackBody(payload),
				Short: false,
			}},
			Footer: "spendguard",
			Ts:     time.Now().Unix(),
		}},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal slack message: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("slack webhook returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
		}
		return nil
	})
}

func formatSlackBody(p model.AlertPayload) string {
	return fmt.Sprintf(
		"*Hour:* %s\n*Total Spend:* %s\n*Limit:* %s\n*Overage:* %s\n*Request Count:* %d\n\nYour API spending has exceeded the hourly limit. Please review your usage.",
		p.HourStart.Format("2006-01-02 15:00"),
		model.FormatDollars(p.TotalSpendMicros),
		model.FormatDollars(p.LimitMicros),
		model.FormatDollars(p.OverageMicros),
		p.RequestCount,
	)
}
