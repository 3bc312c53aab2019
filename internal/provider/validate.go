package provider

import (
	"fmt"

	"github.com/adflow/pipeline/internal/model"
)

// maxPlausibleROAS is the ROAS above which a row is flagged, and
// singleDaySpendCap is the single-day spend above which a row is flagged
// for review even though it isn't necessarily wrong.
const (
	maxPlausibleROAS  = 5.0
	singleDaySpendCap = 100_000
)

// ValidateAdSpend applies the three response-level validation rules from
// spec.md §4.B to one ad-spend row. Every rule produces a warning, never an
// abort: the row is still emitted, and the warning is surfaced to the alarm
// path by the caller.
func ValidateAdSpend(source string, row model.AdSpendFact) []model.Warning {
	var warnings []model.Warning
	if row.Spend > 0 && row.Impressions == 0 {
		warnings = append(warnings, model.Warning{
			Source:  source,
			Kind:    "spend_without_impressions",
			Message: fmt.Sprintf("campaign %s: spend=%.2f with zero impressions", row.CampaignID, row.Spend),
		})
	}
	if roas := safeROAS(row.Revenue(), row.Spend); roas > maxPlausibleROAS {
		warnings = append(warnings, model.Warning{
			Source:  source,
			Kind:    "implausible_roas",
			Message: fmt.Sprintf("campaign %s: roas=%.2f exceeds plausible ceiling", row.CampaignID, roas),
		})
	}
	if row.Spend > singleDaySpendCap {
		warnings = append(warnings, model.Warning{
			Source:  source,
			Kind:    "single_day_spend_spike",
			Message: fmt.Sprintf("campaign %s: single-day spend=%.2f exceeds cap", row.CampaignID, row.Spend),
		})
	}
	return warnings
}

func safeROAS(revenue, spend float64) float64 {
	if spend == 0 {
		return 0
	}
	return revenue / spend
}
