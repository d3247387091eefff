// Package schedulersvc runs the periodic maintenance jobs.
package schedulersvc

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/enrollment"
)

const (
	ReconcileJob = "reconcile-students-count"
	jobTimeout   = 5 * time.Minute
)

type Scheduler struct {
	cron      *cron.Cron
	courseSvc course.Service
	enrRepo   enrollment.Repository
	logger    core.Logger
}

func New(courseSvc course.Service, enrRepo enrollment.Repository, logger core.Logger) *Scheduler {
	vala.BeginValidation().Validate(
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(enrRepo, "enrRepo"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(time.Local)),
		courseSvc: courseSvc,
		enrRepo:   enrRepo,
		logger:    logger,
	}
}

// Start registers the jobs & starts running them in the background.
func (s *Scheduler) Start(conf *core.Config) error {
	if _, err := s.cron.AddFunc(conf.Scheduler.ReconcileSpec, s.runReconcile); err != nil {
		return errors.Wrapf(err, "scheduling %s", ReconcileJob)
	}
	s.cron.Start()
	s.logger.Info("scheduler started", map[string]interface{}{"job": ReconcileJob, "spec": conf.Scheduler.ReconcileSpec})
	return nil
}

// Stop stops the scheduler & waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := s.ReconcileStudentsCounts(ctx)
	if err != nil {
		s.logger.Error(ReconcileJob, err)
		return
	}
	s.logger.Info(ReconcileJob, map[string]interface{}{"updated": n})
}

// ReconcileStudentsCounts resets every course's students count to its number of unblocked enrollments.
func (s *Scheduler) ReconcileStudentsCounts(ctx context.Context) (int, error) {
	counts, err := s.enrRepo.CountByCourse(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return s.courseSvc.ReconcileStudentsCounts(ctx, counts)
}
