package schedulersvc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/user"
	emailsvc "github.com/eduplatform/backend/services/email"
	inmemdb "github.com/eduplatform/backend/storage/database/inmem"
	testutil "github.com/eduplatform/backend/tests"
)

func TestScheduler(t *testing.T) {
	ctx := context.Background()
	conf := testutil.Config(t.TempDir())
	logger := testutil.Logger(conf)

	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	enrRepo := inmemdb.NewEnrollmentRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleServiceMock(conf, logger), conf)
	s := New(course.NewService(courseRepo, usrSvc), enrRepo, logger)

	tutor := testutil.CreateUser(t, usrRepo, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	c1 := testutil.CreateCourse(t, courseRepo, tutor.ID, "Go")
	c2 := testutil.CreateCourse(t, courseRepo, tutor.ID, "Rust")
	for _, sid := range []string{"s1", "s2"} {
		_, _, err := enrRepo.GetOrCreateEnrollment(ctx, sid, c1.ID, time.Now())
		require.NoError(t, err)
	}
	_, _, err := enrRepo.SetBlocked(ctx, "s2", c1.ID, true)
	require.NoError(t, err)
	require.NoError(t, courseRepo.IncrementStudentsCount(ctx, c2.ID, 4))

	t.Run("reconcile", func(t *testing.T) {
		n, err := s.ReconcileStudentsCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		got, err := courseRepo.GetCourse(ctx, c1.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.StudentsCount)
		got, err = courseRepo.GetCourse(ctx, c2.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.StudentsCount)

		n, err = s.ReconcileStudentsCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("start & stop", func(t *testing.T) {
		conf.Scheduler.ReconcileSpec = "lol"
		assert.Error(t, s.Start(conf))

		conf.Scheduler.ReconcileSpec = "@every 1h"
		require.NoError(t, s.Start(conf))
		stopCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		s.Stop(stopCtx)
	})
}

func TestNew_panicsOnMissingDeps(t *testing.T) {
	assert.Panics(t, func() { New(nil, nil, nil) })
}
