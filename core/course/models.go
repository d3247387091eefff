package course

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/user"
)

// Statuses
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// Levels
const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"
)

const (
	DefaultCategory = "General"
	FeaturedLimit   = 3
)

var ErrLectureNotFound = core.NewNotFoundError("lecture not found")

type Lecture struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	VideoURL      string    `json:"videoUrl"`
	Duration      float64   `json:"duration"` // minutes
	Order         int       `json:"order"`
	Description   string    `json:"description"`
	Thumbnail     string    `json:"thumbnail"`
	IsPreview     bool      `json:"isPreview"`
	Notes         string    `json:"notes"`
	NoteFiles     []string  `json:"noteFiles"`
	ResourceFiles []string  `json:"resourceFiles"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Course struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Category      string        `json:"category"`
	Level         string        `json:"level"`
	Image         string        `json:"image"`
	Published     bool          `json:"published"`
	Status        string        `json:"status"`
	IsFeatured    bool          `json:"isFeatured"`
	Curriculum    []string      `json:"curriculum"`
	TotalDuration float64       `json:"totalDuration"` // minutes
	StudentsCount int           `json:"studentsCount"`
	TutorID       string        `json:"tutorId"`
	Tutor         *user.Summary `json:"tutor,omitempty"`
	Lectures      []Lecture     `json:"lectures"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// OwnedBy reports whether the actor is the course's tutor.
func (c *Course) OwnedBy(actor user.Actor) bool {
	return actor.IsTutor() && c.TutorID == actor.ID
}

// CanManage reports whether the actor may mutate the course or see its students.
func (c *Course) CanManage(actor user.Actor) bool {
	return actor.IsAdmin() || c.OwnedBy(actor)
}

func (c *Course) LectureCount() int {
	return len(c.Lectures)
}

// RecomputeTotalDuration sets TotalDuration to the sum of the lecture durations.
func (c *Course) RecomputeTotalDuration() {
	var total float64
	for _, l := range c.Lectures {
		total += l.Duration
	}
	c.TotalDuration = core.Round2(total)
}

func (c *Course) lectureIndex(id string) int {
	for i := range c.Lectures {
		if c.Lectures[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Course) Lecture(id string) (Lecture, bool) {
	if i := c.lectureIndex(id); i >= 0 {
		return c.Lectures[i], true
	}
	return Lecture{}, false
}

// AddLecture appends a new lecture & recomputes the course duration.
func (c *Course) AddLecture(nl NewLecture, now time.Time) Lecture {
	lec := Lecture{
		ID:            uuid.New().String(),
		Title:         nl.Title,
		VideoURL:      nl.VideoURL,
		Duration:      core.Round2(nl.Duration),
		Order:         nl.Order,
		Description:   nl.Description,
		Thumbnail:     nl.Thumbnail,
		IsPreview:     nl.IsPreview,
		Notes:         nl.Notes,
		NoteFiles:     nonNil(nl.NoteFiles),
		ResourceFiles: nonNil(nl.ResourceFiles),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	c.Lectures = append(c.Lectures, lec)
	c.RecomputeTotalDuration()
	c.UpdatedAt = now
	return lec
}

// UpdateLecture shallow-merges the provided fields into the lecture identified by id.
func (c *Course) UpdateLecture(id string, ul UpdateLecture, now time.Time) (Lecture, error) {
	i := c.lectureIndex(id)
	if i < 0 {
		return Lecture{}, ErrLectureNotFound
	}
	lec := &c.Lectures[i]
	if ul.Title != nil {
		lec.Title = *ul.Title
	}
	if ul.VideoURL != nil {
		lec.VideoURL = *ul.VideoURL
	}
	if ul.Duration != nil {
		lec.Duration = core.Round2(*ul.Duration)
	}
	if ul.Order != nil {
		lec.Order = *ul.Order
	}
	if ul.Description != nil {
		lec.Description = *ul.Description
	}
	if ul.Thumbnail != nil {
		lec.Thumbnail = *ul.Thumbnail
	}
	if ul.IsPreview != nil {
		lec.IsPreview = *ul.IsPreview
	}
	if ul.Notes != nil {
		lec.Notes = *ul.Notes
	}
	if ul.NoteFiles != nil {
		lec.NoteFiles = ul.NoteFiles
	}
	if ul.ResourceFiles != nil {
		lec.ResourceFiles = ul.ResourceFiles
	}
	lec.UpdatedAt = now
	c.RecomputeTotalDuration()
	c.UpdatedAt = now
	return *lec, nil
}

// DeleteLecture removes the lecture identified by id. Progress recorded against it is left alone.
func (c *Course) DeleteLecture(id string, now time.Time) error {
	i := c.lectureIndex(id)
	if i < 0 {
		return ErrLectureNotFound
	}
	c.Lectures = append(c.Lectures[:i], c.Lectures[i+1:]...)
	c.RecomputeTotalDuration()
	c.UpdatedAt = now
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// NormalizeCurriculum accepts a JSON array, a comma separated list or repeated values
// and returns the trimmed, non-empty topics.
func NormalizeCurriculum(values ...string) []string {
	topics := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		var parts []string
		if strings.HasPrefix(v, "[") {
			if err := json.Unmarshal([]byte(v), &parts); err != nil {
				parts = strings.Split(strings.Trim(v, "[]"), ",")
			}
		} else {
			parts = strings.Split(v, ",")
		}
		for _, p := range parts {
			if p = strings.Trim(strings.TrimSpace(p), `"`); p != "" {
				topics = append(topics, p)
			}
		}
	}
	return topics
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title       string   `json:"title" form:"title" validate:"required,max=200"`
	Description string   `json:"description" form:"description" validate:"required"`
	Category    string   `json:"category" form:"category" validate:"omitempty,max=50,label"`
	Level       string   `json:"level" form:"level" validate:"omitempty,oneof=Beginner Intermediate Advanced"`
	Published   bool     `json:"published" form:"published"`
	Curriculum  []string `json:"curriculum" form:"curriculum"`
	Image       string   `json:"-"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category)
	nc.Level = core.CleanString(nc.Level)
	nc.Curriculum = NormalizeCurriculum(nc.Curriculum...)
	if nc.Category == "" {
		nc.Category = DefaultCategory
	}
	if nc.Level == "" {
		nc.Level = LevelBeginner
	}
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify an existing Course.
type UpdateCourse struct {
	Title       *string  `json:"title" validate:"omitempty,max=200"`
	Description *string  `json:"description"`
	Category    *string  `json:"category" validate:"omitempty,max=50,label"`
	Level       *string  `json:"level" validate:"omitempty,oneof=Beginner Intermediate Advanced"`
	Published   *bool    `json:"published"`
	IsFeatured  *bool    `json:"isFeatured"`
	Curriculum  []string `json:"curriculum"`
	Image       *string  `json:"-"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	for _, s := range []*string{uc.Title, uc.Description, uc.Category, uc.Level} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if uc.Curriculum != nil {
		uc.Curriculum = NormalizeCurriculum(uc.Curriculum...)
	}
	return validate.Struct(uc)
}

// NewLecture contains information needed to add a Lecture to a Course.
// VideoURL & Duration come from the uploaded video.
type NewLecture struct {
	Title         string   `json:"title" form:"title" validate:"required,max=200"`
	Description   string   `json:"description" form:"description"`
	Order         int      `json:"order" form:"order" validate:"gte=0"`
	IsPreview     bool     `json:"isPreview" form:"isPreview"`
	Notes         string   `json:"notes" form:"notes"`
	VideoURL      string   `json:"-" validate:"required"`
	Duration      float64  `json:"-" validate:"gte=0"`
	Thumbnail     string   `json:"-"`
	NoteFiles     []string `json:"-"`
	ResourceFiles []string `json:"-"`
}

func (nl *NewLecture) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Description = core.CleanString(nl.Description)
	return validate.Struct(nl)
}

// UpdateLecture holds the lecture fields to change; nil fields are left untouched.
type UpdateLecture struct {
	Title         *string  `json:"title" validate:"omitempty,max=200"`
	Description   *string  `json:"description"`
	Order         *int     `json:"order" validate:"omitempty,gte=0"`
	IsPreview     *bool    `json:"isPreview"`
	Notes         *string  `json:"notes"`
	VideoURL      *string  `json:"-"`
	Duration      *float64 `json:"-" validate:"omitempty,gte=0"`
	Thumbnail     *string  `json:"-"`
	NoteFiles     []string `json:"-"`
	ResourceFiles []string `json:"-"`
}

func (ul *UpdateLecture) Validate(validate *validator.Validate) error {
	if ul.Title != nil {
		*ul.Title = core.CleanString(*ul.Title)
	}
	if ul.Description != nil {
		*ul.Description = core.CleanString(*ul.Description)
	}
	return validate.Struct(ul)
}

type QueryFilter struct {
	Status    string `query:"status"`
	Published *bool  `query:"published"`
	Search    string `query:"search"`
	TutorID   string `query:"-"`
	Featured  *bool  `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Status = strings.ToUpper(core.CleanString(qf.Status))
	qf.Search = core.CleanString(qf.Search)
}
