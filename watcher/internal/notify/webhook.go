package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/statuswatch/statuswatch/pkg/types"
)

var errStatus = errors.New("unexpected status")

// webhook posts a JSON payload to a URL. kind selects the payload shape.
type webhook struct {
	kind   string
	url    string
	client *http.Client
}

func newWebhook(kind, url string, client *http.Client) *webhook {
	return &webhook{kind: kind, url: url, client: client}
}

func (w *webhook) Name() string { return w.kind }

func (w *webhook) Notify(ctx context.Context, batch Batch) error {
	var payload any
	switch w.kind {
	case "slack":
		payload = slackPayload(batch)
	case "teams":
		payload = teamsPayload(batch)
	default:
		payload = batch
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &DeliveryError{Channel: w.kind, Err: fmt.Errorf("encode payload: %w", err)}
	}
	return w.post(ctx, body)
}

func (w *webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Channel: w.kind, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return &DeliveryError{Channel: w.kind, Retryable: ctx.Err() == nil, Err: fmt.Errorf("http post: %w", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return &DeliveryError{
			Channel:    w.kind,
			StatusCode: resp.StatusCode,
			Retryable:  retryableStatus(resp.StatusCode),
			Err:        errStatus,
		}
	}
	return nil
}

// retryableStatus reports whether a response status may succeed on retry.
func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}

// --- Slack -------------------------------------------------------------------

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments"`
}

type slackAttachment struct {
	Fallback string   `json:"fallback"`
	Color    string   `json:"color"`
	Text     string   `json:"text"`
	MrkdwnIn []string `json:"mrkdwn_in"`
}

func slackPayload(b Batch) slackMessage {
	msg := slackMessage{Text: summary(b)}
	for _, a := range b.Alerts {
		msg.Attachments = append(msg.Attachments, slackAttachment{
			Fallback: a.Title,
			Color:    slackColor(a.Severity),
			Text:     alertText(a),
			MrkdwnIn: []string{"text"},
		})
	}
	return msg
}

func slackColor(s types.Severity) string {
	if s == types.SeverityError {
		return "danger"
	}
	return "warning"
}

// --- Teams -------------------------------------------------------------------

type teamsCard struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor"`
	Summary    string         `json:"summary"`
	Title      string         `json:"title"`
	Sections   []teamsSection `json:"sections"`
}

type teamsSection struct {
	ActivityTitle string      `json:"activityTitle"`
	Text          string      `json:"text,omitempty"`
	Facts         []teamsFact `json:"facts,omitempty"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func teamsPayload(b Batch) teamsCard {
	card := teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: severityColor(worstSeverity(b.Alerts)),
		Summary:    summary(b),
		Title:      "statuswatch: " + summary(b),
	}
	for _, a := range b.Alerts {
		sec := teamsSection{ActivityTitle: a.Title}
		switch a.Kind {
		case types.KindUptime:
			sec.Facts = []teamsFact{
				{Name: "Alert-level", Value: string(a.Level)},
				{Name: "Uptime", Value: formatPercentage(a.Percentage)},
			}
		case types.KindTimeline:
			sec.Text = a.Message
			if !a.ActivatedAt.IsZero() {
				sec.Facts = []teamsFact{{Name: "Activated", Value: a.ActivatedAt.UTC().Format(time.RFC3339)}}
			}
		}
		card.Sections = append(card.Sections, sec)
	}
	return card
}

func severityColor(s types.Severity) string {
	if s == types.SeverityError {
		return "FF4F6A"
	}
	return "FFAB40"
}

func worstSeverity(alerts []types.Alert) types.Severity {
	for _, a := range alerts {
		if a.Severity == types.SeverityError {
			return types.SeverityError
		}
	}
	return types.SeverityWarning
}

// --- shared text -------------------------------------------------------------

func summary(b Batch) string {
	if len(b.Alerts) == 1 {
		return "1 new status alert"
	}
	return strconv.Itoa(len(b.Alerts)) + " new status alerts"
}

// alertText renders one alert in Slack mrkdwn.
func alertText(a types.Alert) string {
	var sb strings.Builder
	switch a.Kind {
	case types.KindUptime:
		fmt.Fprintf(&sb, "Bank: *%s*\nAlert-level: *%s*\nUptime: *%s*", a.Title, a.Level, formatPercentage(a.Percentage))
	default:
		fmt.Fprintf(&sb, "*%s*", a.Title)
		if a.Message != "" {
			sb.WriteString("\n" + a.Message)
		}
		if !a.ActivatedAt.IsZero() {
			sb.WriteString("\nActivated: " + a.ActivatedAt.UTC().Format(time.RFC3339))
		}
	}
	return sb.String()
}

func formatPercentage(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64) + "%"
}
