// Package pipeline implements the report pipeline executed for each queued
// job: collect business reports from the SaaS admin panel, validate and
// aggregate them, publish to the spreadsheet, and send the digest.
package pipeline

import "context"

// Report is one collected report category's data
type Report struct {
	Category string
	Rows     []map[string]string
}

// RecordCount returns the number of data rows collected
func (r *Report) RecordCount() int {
	return len(r.Rows)
}

// Collector fetches one report category for a date range
type Collector interface {
	Collect(ctx context.Context, category, dateStart, dateEnd string) (*Report, error)
}

// SpreadsheetPublisher pushes aggregated reports to the destination
// spreadsheet and returns its URL.
type SpreadsheetPublisher interface {
	Publish(ctx context.Context, spreadsheetID string, reports []*Report) (string, error)
}

// DigestSender emails the run summary to the configured recipients
type DigestSender interface {
	SendDigest(ctx context.Context, recipients []string, summary DigestSummary) error
}

// ShopifySyncer pushes sales figures to the Shopify storefront, when enabled
type ShopifySyncer interface {
	SyncSales(ctx context.Context, report *Report) error
}

// DigestSummary is the content of the post-run email
type DigestSummary struct {
	DateRangeStart string
	DateRangeEnd   string
	RecordCounts   map[string]int
	Warnings       []string
	SpreadsheetURL string
}
