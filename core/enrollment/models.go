package enrollment

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/user"
)

// LectureProgress is a student's progress on one lecture.
type LectureProgress struct {
	LectureID string    `json:"lectureId"`
	Completed bool      `json:"completed"`
	TimeSpent float64   `json:"timeSpent"` // seconds, accumulated
	UpdatedAt time.Time `json:"updatedAt"`
}

type Enrollment struct {
	ID                string            `json:"id"`
	StudentID         string            `json:"studentId"`
	CourseID          string            `json:"courseId"`
	Progress          []LectureProgress `json:"progress"`
	CompletedLectures int               `json:"completedLectures"`
	TotalLectures     int               `json:"totalLectures"`
	ProgressPercent   int               `json:"progressPercent"`
	LastWatchedAt     *time.Time        `json:"lastWatchedAt"`
	IsBlocked         bool              `json:"isBlocked"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`

	Course  *course.Course `json:"course,omitempty"`
	Student *user.Summary  `json:"student,omitempty"`
}

// SetLectureProgress upserts the progress entry of a lecture: completed is overwritten, timeSpent accumulated.
func (e *Enrollment) SetLectureProgress(lectureID string, completed bool, timeSpent float64, now time.Time) {
	if timeSpent < 0 {
		timeSpent = 0
	}
	for i := range e.Progress {
		if e.Progress[i].LectureID == lectureID {
			e.Progress[i].Completed = completed
			e.Progress[i].TimeSpent += timeSpent
			e.Progress[i].UpdatedAt = now
			return
		}
	}
	e.Progress = append(e.Progress, LectureProgress{
		LectureID: lectureID,
		Completed: completed,
		TimeSpent: timeSpent,
		UpdatedAt: now,
	})
}

// Recompute derives CompletedLectures & ProgressPercent from the progress entries against totalLectures.
// Entries of deleted lectures still count; the percentage is clamped to 100.
func (e *Enrollment) Recompute(totalLectures int) {
	completed := 0
	for _, p := range e.Progress {
		if p.Completed {
			completed++
		}
	}
	e.CompletedLectures = completed
	e.TotalLectures = totalLectures
	e.ProgressPercent = ProgressPercent(completed, totalLectures)
}

// TotalTimeSpent sums the seconds spent on every lecture.
func (e *Enrollment) TotalTimeSpent() float64 {
	var total float64
	for _, p := range e.Progress {
		total += p.TimeSpent
	}
	return total
}

func (e *Enrollment) IsCompleted() bool {
	return e.ProgressPercent == 100
}

// ProgressPercent returns round(completed/total*100) within [0, 100]. A course without lectures is at 0.
func ProgressPercent(completed, total int) int {
	if total <= 0 || completed <= 0 {
		return 0
	}
	pct := int(math.Round(float64(completed) / float64(total) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// RecordProgress is a student's progress report on a lecture.
type RecordProgress struct {
	LectureID string  `json:"lectureId" validate:"required"`
	Completed *bool   `json:"completed" validate:"required"`
	TimeSpent float64 `json:"timeSpent" validate:"gte=0"`
}

func (rp *RecordProgress) Validate(validate *validator.Validate) error {
	rp.LectureID = core.CleanString(rp.LectureID)
	return validate.Struct(rp)
}

// EnrolledUser is a course's enrollment as seen by its tutor.
type EnrolledUser struct {
	Student           user.Summary      `json:"student"`
	Progress          []LectureProgress `json:"progress"`
	CompletedLectures int               `json:"completedLectures"`
	ProgressPercent   int               `json:"progressPercent"`
	LastWatchedAt     *time.Time        `json:"lastWatchedAt"`
	IsBlocked         bool              `json:"isBlocked"`
	EnrolledAt        time.Time         `json:"enrolledAt"`
}

// CourseStats is a course along with every enrollment, blocked ones included.
type CourseStats struct {
	Course          course.Course  `json:"course"`
	EnrolledUsers   []EnrolledUser `json:"enrolledUsers"`
	RegisteredUsers int            `json:"registeredUsers"`
	TotalWatchTime  float64        `json:"totalWatchTime"` // seconds
}

type QueryFilter struct {
	StudentID      string
	CourseID       string
	CourseIDs      []string
	IncludeBlocked bool
	CreatedFrom    time.Time
}
