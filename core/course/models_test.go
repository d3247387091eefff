package course

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/backend/core/user"
)

func TestNormalizeCurriculum(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{name: "nil", want: []string{}},
		{name: "json array", values: []string{`["Intro", " Goroutines ", ""]`}, want: []string{"Intro", "Goroutines"}},
		{name: "comma separated", values: []string{"Intro, Channels,,Select "}, want: []string{"Intro", "Channels", "Select"}},
		{name: "repeated values", values: []string{"Intro", " ", "Channels"}, want: []string{"Intro", "Channels"}},
		{name: "broken json", values: []string{`["Intro", "Channels"`}, want: []string{"Intro", "Channels"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeCurriculum(tt.values...))
		})
	}
}

func TestCourse_CanManage(t *testing.T) {
	c := Course{TutorID: "t1"}

	assert.True(t, c.CanManage(user.Actor{ID: "t1", Role: user.RoleTutor}))
	assert.True(t, c.CanManage(user.Actor{ID: "a1", Role: user.RoleAdmin}))
	assert.False(t, c.CanManage(user.Actor{ID: "t2", Role: user.RoleTutor}))
	assert.False(t, c.CanManage(user.Actor{ID: "t1", Role: user.RoleStudent}))
}

func TestCourse_lectures(t *testing.T) {
	now := time.Now().UTC()
	c := Course{}

	l1 := c.AddLecture(NewLecture{Title: "Intro", VideoURL: "/v/1.mp4", Duration: 2.083333}, now)
	l2 := c.AddLecture(NewLecture{Title: "Channels", VideoURL: "/v/2.mp4", Duration: 10}, now)
	assert.Equal(t, 2.08, l1.Duration)
	assert.Equal(t, []string{}, l1.NoteFiles)
	assert.Equal(t, 12.08, c.TotalDuration)
	assert.Equal(t, 2, c.LectureCount())

	title := "Channels & Select"
	dur := 5.5
	got, err := c.UpdateLecture(l2.ID, UpdateLecture{Title: &title, Duration: &dur}, now)
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, "/v/2.mp4", got.VideoURL)
	assert.Equal(t, 7.58, c.TotalDuration)

	_, err = c.UpdateLecture("nope", UpdateLecture{Title: &title}, now)
	assert.Equal(t, ErrLectureNotFound, err)

	require.NoError(t, c.DeleteLecture(l1.ID, now))
	assert.Equal(t, 5.5, c.TotalDuration)
	_, ok := c.Lecture(l1.ID)
	assert.False(t, ok)
	assert.Equal(t, ErrLectureNotFound, c.DeleteLecture(l1.ID, now))
}
