package billing

import (
	"strings"

	"github.com/ManuelReschke/MediaDash/app/models"
	"github.com/ManuelReschke/MediaDash/internal/pkg/entitlements"
)

func normalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case models.PlanPro:
		return models.PlanPro
	case models.PlanBusiness:
		return models.PlanBusiness
	default:
		return models.PlanFree
	}
}

func planRank(plan string) int {
	return entitlements.Rank(normalizePlan(plan))
}

func normalizeInterval(interval string) string {
	i := strings.ToLower(strings.TrimSpace(interval))
	switch i {
	case models.BillingIntervalMonth, models.BillingIntervalYear:
		return i
	default:
		return models.BillingIntervalUnknown
	}
}

func isEntitlingStatus(status string) bool {
	sub := models.BillingSubscription{Status: strings.ToLower(strings.TrimSpace(status))}
	return sub.IsEntitling()
}
