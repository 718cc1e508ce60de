package entitlements

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/MediaDash/app/models"
)

func TestMaxActiveJobs(t *testing.T) {
	tests := []struct {
		plan string
		want int
	}{
		{models.PlanFree, 2},
		{models.PlanPro, 10},
		{"PRO", 10},
		{models.PlanBusiness, 50},
		{"", 2},
		{"legacy", 2},
	}
	for _, tt := range tests {
		t.Run(tt.plan, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxActiveJobs(tt.plan))
		})
	}
}

func TestHighest(t *testing.T) {
	assert.Equal(t, models.PlanFree, Highest())
	assert.Equal(t, models.PlanPro, Highest(models.PlanFree, models.PlanPro))
	assert.Equal(t, models.PlanBusiness, Highest(models.PlanBusiness, models.PlanPro, "unknown"))
}

func TestOperationAllowed(t *testing.T) {
	assert.True(t, OperationAllowed(models.PlanFree, models.OperationVideoCut))
	assert.False(t, OperationAllowed(models.PlanFree, "video_transcode"))
}
