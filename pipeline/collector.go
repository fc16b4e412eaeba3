package pipeline

import (
	"context"

	"github.com/mrudoy/studio-analytics-sub004/errors"
)

// panelReportSlugs maps report categories to the panel's export identifiers
var panelReportSlugs = map[string]string{
	"attendance":  "class-attendance",
	"sales":       "sales-summary",
	"memberships": "membership-roster",
	"payroll":     "instructor-payroll",
}

// panelCollector adapts PanelClient to the Collector boundary, translating
// category names to panel report slugs.
type panelCollector struct {
	client *PanelClient
}

// NewPanelCollector creates the production collector over a panel client
func NewPanelCollector(client *PanelClient) Collector {
	return &panelCollector{client: client}
}

func (c *panelCollector) Collect(ctx context.Context, category, dateStart, dateEnd string) (*Report, error) {
	slug, ok := panelReportSlugs[category]
	if !ok {
		return nil, errors.Wrapf(errors.ErrInvalidRequest, "unknown report category %q", category)
	}

	report, err := c.client.Collect(ctx, slug, dateStart, dateEnd)
	if err != nil {
		return nil, err
	}
	report.Category = category
	return report, nil
}
