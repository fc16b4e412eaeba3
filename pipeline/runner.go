package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
	"github.com/mrudoy/studio-analytics-sub004/queue"
)

// Config drives one pipeline instance
type Config struct {
	Categories       []string
	SpreadsheetID    string
	DigestRecipients []string
	ShopifyEnabled   bool
	// DefaultRangeDays is how far back a run reaches when the payload
	// carries no explicit date range.
	DefaultRangeDays int
}

// Pipeline is the job body executed by the queue worker. Collection
// failures in individual categories degrade the run with warnings; only a
// total collection wipeout or a spreadsheet export failure fails the job.
type Pipeline struct {
	cfg         Config
	collector   Collector
	spreadsheet SpreadsheetPublisher
	digest      DigestSender
	shopify     ShopifySyncer
	log         *zap.SugaredLogger
}

// New creates a pipeline. digest and shopify may be nil to disable those
// delivery stages.
func New(cfg Config, collector Collector, spreadsheet SpreadsheetPublisher, digest DigestSender, shopify ShopifySyncer) *Pipeline {
	if cfg.DefaultRangeDays <= 0 {
		cfg.DefaultRangeDays = 7
	}
	return &Pipeline{
		cfg:         cfg,
		collector:   collector,
		spreadsheet: spreadsheet,
		digest:      digest,
		shopify:     shopify,
		log:         logger.Named("pipeline"),
	}
}

// Run executes the pipeline stages for one job
func (p *Pipeline) Run(ctx context.Context, payload queue.Payload, progress queue.ProgressFunc) (*queue.Result, error) {
	dateStart, dateEnd := p.dateRange(payload)

	categories := make(map[string]queue.CategoryStatus, len(p.cfg.Categories))
	for _, cat := range p.cfg.Categories {
		categories[cat] = queue.CategoryStatus{State: queue.CategoryPending}
	}
	if err := progress("Preparing run", 5, categories); err != nil {
		return nil, err
	}

	result := &queue.Result{RecordCounts: make(map[string]int)}

	// Stage 1: collect each category. Percent walks from 10 to 60 across
	// the category list.
	var reports []*Report
	var salesReport *Report
	for i, cat := range p.cfg.Categories {
		percent := 10 + (50*i)/len(p.cfg.Categories)
		categories[cat] = queue.CategoryStatus{State: queue.CategoryRunning}
		if err := progress(fmt.Sprintf("Collecting %s", cat), percent, categories); err != nil {
			return nil, err
		}

		report, err := p.collector.Collect(ctx, cat, dateStart, dateEnd)
		if err != nil {
			p.log.Warnw("Category collection failed", "category", cat, "error", err)
			categories[cat] = queue.CategoryStatus{State: queue.CategoryFailed, Error: err.Error()}
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", cat, err))
			continue
		}

		categories[cat] = queue.CategoryStatus{
			State:       queue.CategoryDone,
			RecordCount: report.RecordCount(),
		}
		result.RecordCounts[cat] = report.RecordCount()
		reports = append(reports, report)
		if cat == "sales" {
			salesReport = report
		}
	}

	if len(reports) == 0 {
		return nil, errors.Newf("all %d report categories failed to collect", len(p.cfg.Categories))
	}

	// Stage 2: validate what was collected
	if err := progress("Validating reports", 65, categories); err != nil {
		return nil, err
	}
	result.ValidationPassed = true
	for _, report := range reports {
		if warnings := validateReport(report); len(warnings) > 0 {
			result.Warnings = append(result.Warnings, warnings...)
			result.ValidationPassed = false
		}
	}

	// Stage 3: publish to the spreadsheet. This is the run's reason to
	// exist, so a failure here fails the job.
	if err := progress("Publishing spreadsheet", 75, categories); err != nil {
		return nil, err
	}
	sheetURL, err := p.spreadsheet.Publish(ctx, p.cfg.SpreadsheetID, reports)
	if err != nil {
		return nil, errors.Wrap(err, "spreadsheet publish failed")
	}
	result.SpreadsheetURL = sheetURL

	// Stage 4: best-effort deliveries
	if err := progress("Sending digest", 90, categories); err != nil {
		return nil, err
	}
	p.deliverDigest(ctx, dateStart, dateEnd, result)
	p.syncShopify(ctx, salesReport, result, categories)

	if err := progress("Finishing", 98, categories); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *Pipeline) deliverDigest(ctx context.Context, dateStart, dateEnd string, result *queue.Result) {
	if p.digest == nil || len(p.cfg.DigestRecipients) == 0 {
		return
	}
	err := p.digest.SendDigest(ctx, p.cfg.DigestRecipients, DigestSummary{
		DateRangeStart: dateStart,
		DateRangeEnd:   dateEnd,
		RecordCounts:   result.RecordCounts,
		Warnings:       result.Warnings,
		SpreadsheetURL: result.SpreadsheetURL,
	})
	if err != nil {
		p.log.Warnw("Digest delivery failed", "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("digest: %v", err))
		return
	}
	result.DigestSent = true
}

func (p *Pipeline) syncShopify(ctx context.Context, sales *Report, result *queue.Result, categories map[string]queue.CategoryStatus) {
	if p.shopify == nil || !p.cfg.ShopifyEnabled || sales == nil {
		return
	}
	if err := p.shopify.SyncSales(ctx, sales); err != nil {
		p.log.Warnw("Shopify sync failed", "error", err)
		result.Warnings = append(result.Warnings, fmt.Sprintf("shopify: %v", err))
		return
	}
	status := categories["sales"]
	status.DeliveryMethod = "shopify"
	categories["sales"] = status
}

// dateRange resolves the payload's explicit range or falls back to the
// trailing default window ending yesterday.
func (p *Pipeline) dateRange(payload queue.Payload) (string, string) {
	if payload.DateRangeStart != "" && payload.DateRangeEnd != "" {
		return payload.DateRangeStart, payload.DateRangeEnd
	}
	end := time.Now().AddDate(0, 0, -1)
	start := end.AddDate(0, 0, -(p.cfg.DefaultRangeDays - 1))
	return start.Format("2006-01-02"), end.Format("2006-01-02")
}

// validateReport sanity-checks one collected report
func validateReport(report *Report) []string {
	var warnings []string
	if report.RecordCount() == 0 {
		warnings = append(warnings, fmt.Sprintf("%s: export contained no rows", report.Category))
	}
	return warnings
}
