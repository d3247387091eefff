package enrollment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		completed, total, want int
	}{
		{0, 0, 0},
		{3, 0, 0},
		{0, 3, 0},
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{4, 3, 100},
		{1, 8, 13},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProgressPercent(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestEnrollment_SetLectureProgress(t *testing.T) {
	now := time.Now().UTC()
	enr := Enrollment{}

	enr.SetLectureProgress("l1", true, 30, now)
	enr.SetLectureProgress("l2", false, -5, now)
	enr.SetLectureProgress("l1", false, 15, now)

	assert.Len(t, enr.Progress, 2)
	assert.False(t, enr.Progress[0].Completed)
	assert.Equal(t, float64(45), enr.Progress[0].TimeSpent)
	assert.Equal(t, float64(0), enr.Progress[1].TimeSpent)
	assert.Equal(t, float64(45), enr.TotalTimeSpent())
}

func TestEnrollment_Recompute(t *testing.T) {
	now := time.Now().UTC()
	enr := Enrollment{}
	enr.SetLectureProgress("l1", true, 0, now)
	enr.SetLectureProgress("l2", true, 0, now)

	enr.Recompute(4)
	assert.Equal(t, 2, enr.CompletedLectures)
	assert.Equal(t, 4, enr.TotalLectures)
	assert.Equal(t, 50, enr.ProgressPercent)
	assert.False(t, enr.IsCompleted())

	// lectures were deleted after completion
	enr.Recompute(1)
	assert.Equal(t, 100, enr.ProgressPercent)
	assert.True(t, enr.IsCompleted())

	enr.Recompute(0)
	assert.Equal(t, 0, enr.ProgressPercent)
}
