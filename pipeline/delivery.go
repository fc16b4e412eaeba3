package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/mrudoy/studio-analytics-sub004/errors"
)

// sheetPublisher pushes aggregated reports through the spreadsheet webhook.
// The webhook is a small web app bound to the destination spreadsheet; it
// accepts the rows and appends them to the per-category tabs.
type sheetPublisher struct {
	webhookURL string
	client     *http.Client
}

// NewSheetPublisher creates the production spreadsheet publisher
func NewSheetPublisher(webhookURL string) SpreadsheetPublisher {
	return &sheetPublisher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

type sheetPayload struct {
	SpreadsheetID string                         `json:"spreadsheet_id"`
	Categories    map[string][]map[string]string `json:"categories"`
}

type sheetResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

func (p *sheetPublisher) Publish(ctx context.Context, spreadsheetID string, reports []*Report) (string, error) {
	if p.webhookURL == "" {
		return "", errors.Wrap(errors.ErrInvalidRequest, "sheet webhook URL is not configured")
	}

	payload := sheetPayload{
		SpreadsheetID: spreadsheetID,
		Categories:    make(map[string][]map[string]string, len(reports)),
	}
	for _, report := range reports {
		payload.Categories[report.Category] = report.Rows
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode sheet payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build sheet request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "sheet webhook request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Newf("sheet webhook returned status %d", resp.StatusCode)
	}

	var result sheetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, "failed to decode sheet response")
	}
	if result.Error != "" {
		return "", errors.Newf("sheet webhook rejected upload: %s", result.Error)
	}

	return result.URL, nil
}

// smtpDigestSender emails the run summary through a plain SMTP relay
type smtpDigestSender struct {
	host string
	port int
	from string
}

// NewSMTPDigestSender creates the production digest sender
func NewSMTPDigestSender(host string, port int, from string) DigestSender {
	return &smtpDigestSender{host: host, port: port, from: from}
}

func (s *smtpDigestSender) SendDigest(ctx context.Context, recipients []string, summary DigestSummary) error {
	if s.host == "" || s.from == "" {
		return errors.Wrap(errors.ErrInvalidRequest, "SMTP relay is not configured")
	}

	msg := formatDigest(s.from, recipients, summary)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, nil, s.from, recipients, msg)
	}()

	select {
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "digest send interrupted")
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "failed to send digest")
		}
		return nil
	}
}

func formatDigest(from string, recipients []string, summary DigestSummary) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&b, "Subject: Studio report digest %s to %s\r\n", summary.DateRangeStart, summary.DateRangeEnd)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "Report run for %s to %s\r\n\r\n", summary.DateRangeStart, summary.DateRangeEnd)
	for category, count := range summary.RecordCounts {
		fmt.Fprintf(&b, "  %s: %d records\r\n", category, count)
	}
	if summary.SpreadsheetURL != "" {
		fmt.Fprintf(&b, "\r\nSpreadsheet: %s\r\n", summary.SpreadsheetURL)
	}
	if len(summary.Warnings) > 0 {
		b.WriteString("\r\nWarnings:\r\n")
		for _, warning := range summary.Warnings {
			fmt.Fprintf(&b, "  - %s\r\n", warning)
		}
	}
	return []byte(b.String())
}
