package pipeline

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mrudoy/studio-analytics-sub004/errors"
	"github.com/mrudoy/studio-analytics-sub004/logger"
)

// PanelConfig configures the admin-panel client
type PanelConfig struct {
	BaseURL           string
	Username          string
	Password          string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// PanelClient scrapes report exports from the SaaS admin panel. The panel is
// a shared tenant system with no API, so every request goes through a rate
// limiter to stay under its abuse thresholds.
type PanelClient struct {
	cfg     PanelConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger

	loggedIn bool
}

// NewPanelClient creates a panel client with a session cookie jar
func NewPanelClient(cfg PanelConfig) (*PanelClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "panel base URL is required")
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2.0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cookie jar")
	}

	return &PanelClient{
		cfg: cfg,
		client: &http.Client{
			Jar:     jar,
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:     logger.Named("panel"),
	}, nil
}

// Login establishes a panel session. Idempotent per client instance.
func (c *PanelClient) Login(ctx context.Context) error {
	if c.loggedIn {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter interrupted")
	}

	form := url.Values{
		"username": {c.cfg.Username},
		"password": {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to build login request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "panel login request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusFound {
		return errors.Newf("panel login rejected: status %d", resp.StatusCode)
	}

	c.loggedIn = true
	c.log.Infow("Panel session established", "base_url", c.cfg.BaseURL)
	return nil
}

// Collect downloads one report category as CSV and parses it into rows
func (c *PanelClient) Collect(ctx context.Context, category, dateStart, dateEnd string) (*Report, error) {
	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter interrupted")
	}

	exportURL := fmt.Sprintf("%s/reports/%s/export?start=%s&end=%s&format=csv",
		c.cfg.BaseURL, url.PathEscape(category), url.QueryEscape(dateStart), url.QueryEscape(dateEnd))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build export request for %s", category)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "panel export request failed for %s", category)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		// Session expired mid-run; force a fresh login on the next call
		c.loggedIn = false
		return nil, errors.Newf("panel session expired while exporting %s", category)
	default:
		return nil, errors.Newf("panel export for %s returned status %d", category, resp.StatusCode)
	}

	rows, err := parseCSVReport(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s export", category)
	}

	c.log.Infow("Collected report",
		"category", category,
		"records", len(rows),
		"date_start", dateStart,
		"date_end", dateEnd)
	return &Report{Category: category, Rows: rows}, nil
}

// parseCSVReport turns a header-prefixed CSV stream into keyed rows
func parseCSVReport(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("export is empty")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV header")
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to read CSV row")
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}

	return rows, nil
}
