package entitlements

import (
	"strings"

	"github.com/ManuelReschke/MediaDash/app/models"
)

type Plan string

const (
	PlanFree     Plan = models.PlanFree
	PlanPro      Plan = models.PlanPro
	PlanBusiness Plan = models.PlanBusiness
)

// Limits bundles what a plan allows.
type Limits struct {
	MaxActiveJobs     int
	AllowedOperations []string
	ChatEnabled       bool
}

var allOperations = []string{
	models.OperationVideoCut,
	models.OperationVideoSplit,
	models.OperationVideoConcatenate,
	models.OperationAudioConcatenate,
	models.OperationImageToVideo,
	models.OperationVideoCaption,
}

// ForPlan returns the limits of plan. Unknown plans get the free tier.
func ForPlan(plan Plan) Limits {
	switch Plan(strings.ToLower(string(plan))) {
	case PlanBusiness:
		return Limits{MaxActiveJobs: 50, AllowedOperations: allOperations, ChatEnabled: true}
	case PlanPro:
		return Limits{MaxActiveJobs: 10, AllowedOperations: allOperations, ChatEnabled: true}
	default:
		return Limits{MaxActiveJobs: 2, AllowedOperations: allOperations, ChatEnabled: true}
	}
}

// MaxActiveJobs returns how many submitting/processing jobs a workspace may hold.
func MaxActiveJobs(plan string) int {
	return ForPlan(Plan(plan)).MaxActiveJobs
}

// OperationAllowed reports whether plan may submit operation.
func OperationAllowed(plan, operation string) bool {
	for _, op := range ForPlan(Plan(plan)).AllowedOperations {
		if op == operation {
			return true
		}
	}
	return false
}

// Rank orders plans from free upwards; unknown plans rank as free.
func Rank(plan string) int {
	switch Plan(strings.ToLower(plan)) {
	case PlanBusiness:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// Highest returns the highest ranked plan of plans, or free when empty.
func Highest(plans ...string) string {
	best := models.PlanFree
	for _, p := range plans {
		if Rank(p) > Rank(best) {
			best = strings.ToLower(p)
		}
	}
	return best
}
