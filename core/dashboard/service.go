package dashboard

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/enrollment"
	"github.com/eduplatform/backend/core/user"
)

var NowFunc = time.Now // mockable

type (
	Service interface {
		Student(ctx context.Context, actor user.Actor) (StudentDashboard, error)
		Tutor(ctx context.Context, actor user.Actor) (TutorDashboard, error)
		Admin(ctx context.Context, actor user.Actor) (AdminDashboard, error)
	}

	service struct {
		courseSvc course.Service
		enrSvc    enrollment.Service
		usrSvc    user.Service
	}
)

var _ Service = (*service)(nil)

func NewService(courseSvc course.Service, enrSvc enrollment.Service, usrSvc user.Service) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(courseSvc, "courseSvc"),
		vala.IsNotNil(enrSvc, "enrSvc"),
		vala.IsNotNil(usrSvc, "usrSvc"),
	).CheckAndPanic()

	return &service{courseSvc: courseSvc, enrSvc: enrSvc, usrSvc: usrSvc}
}

func (svc *service) Student(ctx context.Context, actor user.Actor) (StudentDashboard, error) {
	enrs, err := svc.enrSvc.ListEnrolledCourses(ctx, actor)
	if err != nil {
		return StudentDashboard{}, err
	}
	dash := StudentDashboard{
		TotalEnrolled: len(enrs),
		Activity:      make([]Activity, 0, len(enrs)),
	}
	for _, e := range enrs {
		if e.IsCompleted() {
			dash.CompletedCourses++
		}
		dash.Activity = append(dash.Activity, Activity{
			CourseID:        e.CourseID,
			CourseTitle:     e.Course.Title,
			ProgressPercent: e.ProgressPercent,
			LastWatchedAt:   e.LastWatchedAt,
		})
	}
	dash.Certificates = dash.CompletedCourses
	return dash, nil
}

func (svc *service) Tutor(ctx context.Context, actor user.Actor) (TutorDashboard, error) {
	if !actor.IsTutor() {
		return TutorDashboard{}, core.NewUnauthorizedError("only tutors have a tutor dashboard")
	}
	courses, err := svc.courseSvc.ListByTutor(ctx, actor.ID)
	if err != nil {
		return TutorDashboard{}, err
	}
	ids := make([]string, 0, len(courses))
	for _, c := range courses {
		ids = append(ids, c.ID)
	}
	var enrs []enrollment.Enrollment
	if len(ids) > 0 {
		if enrs, err = svc.enrSvc.Query(ctx, enrollment.QueryFilter{CourseIDs: ids, IncludeBlocked: true}); err != nil {
			return TutorDashboard{}, err
		}
	}

	now := NowFunc()
	kpis := computeKPIs(courses, enrs, now)
	kpis.TotalStudents = len(enrs)

	recent, err := svc.recentEnrollments(ctx, courses, enrs, now)
	if err != nil {
		return TutorDashboard{}, err
	}
	streak, lastUpload := UploadStreak(uploadDates(courses), now.Location())
	kpis.Streak = streak

	return TutorDashboard{
		KPIs:              kpis,
		TopCourses:        topCourses(courses, enrs),
		RecentEnrollments: recent,
		MotivationalTip:   motivationalTips[rand.Intn(len(motivationalTips))],
		LastUpload:        lastUpload,
	}, nil
}

// Admin computes the system-wide dashboard. The independent aggregates are loaded concurrently.
func (svc *service) Admin(ctx context.Context, actor user.Actor) (AdminDashboard, error) {
	if !actor.IsAdmin() {
		return AdminDashboard{}, core.NewUnauthorizedError("only admins have an admin dashboard")
	}
	now := NowFunc()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	var (
		courses       []course.Course
		enrs          []enrollment.Enrollment
		totalStudents int
		monthlyUsers  int
		usersData     = make([]MonthCount, monthlyUsersMonths)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		courses, err = svc.courseSvc.ListAll(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		enrs, err = svc.enrSvc.Query(gctx, enrollment.QueryFilter{IncludeBlocked: true})
		return err
	})
	g.Go(func() error {
		var err error
		totalStudents, err = svc.usrSvc.Count(gctx, &user.QueryFilter{Roles: []string{user.RoleStudent}})
		return err
	})
	g.Go(func() error {
		var err error
		monthlyUsers, err = svc.usrSvc.Count(gctx, &user.QueryFilter{CreatedFrom: monthStart})
		return err
	})
	for i := 0; i < monthlyUsersMonths; i++ {
		i := i
		from := monthStart.AddDate(0, i-(monthlyUsersMonths-1), 0)
		to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
		g.Go(func() error {
			cnt, err := svc.usrSvc.Count(gctx, &user.QueryFilter{
				Roles:       []string{user.RoleStudent},
				CreatedFrom: from,
				CreatedTo:   to,
			})
			if err != nil {
				return err
			}
			usersData[i] = MonthCount{Month: from.Format("Jan"), Users: cnt}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AdminDashboard{}, errors.Wrap(err, "loading admin dashboard")
	}

	kpis := computeKPIs(courses, enrs, now)
	kpis.TotalStudents = totalStudents
	streak, _ := UploadStreak(uploadDates(courses), now.Location())
	kpis.Streak = streak

	recent, err := svc.recentEnrollments(ctx, courses, enrs, now)
	if err != nil {
		return AdminDashboard{}, err
	}

	dash := AdminDashboard{
		KPIs:                kpis,
		MonthlyNewUsers:     monthlyUsers,
		MonthlyNewCourses:   kpis.MonthlyCourses,
		MonthlyNewUsersData: usersData,
		TopCourses:          topCourses(courses, enrs),
		RecentEnrollments:   recent,
	}
	for _, e := range enrs {
		if !e.CreatedAt.Before(monthStart) {
			dash.MonthlyEnrollments++
		}
	}
	return dash, nil
}

func computeKPIs(courses []course.Course, enrs []enrollment.Enrollment, now time.Time) KPIs {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	kpis := KPIs{TotalCourses: len(courses)}

	for _, c := range courses {
		kpis.TotalLectures += len(c.Lectures)
		if !c.CreatedAt.Before(monthStart) {
			kpis.MonthlyCourses++
		}
		for _, l := range c.Lectures {
			if !l.CreatedAt.Before(monthStart) {
				kpis.MonthlyLectures++
			}
		}
	}

	var pctSum int
	for _, e := range enrs {
		pctSum += e.ProgressPercent
		if e.LastWatchedAt != nil && now.Sub(*e.LastWatchedAt) <= activeStudentsWindow {
			kpis.ActiveStudents++
		}
		if now.Sub(e.CreatedAt) <= recentEnrollWindow {
			kpis.RecentTwoDaysEnrollmentsCount++
		}
	}
	if len(enrs) > 0 {
		kpis.AvgCompletion = int(math.Round(float64(pctSum) / float64(len(enrs))))
	}
	return kpis
}

// topCourses returns the courses with the most enrollments.
func topCourses(courses []course.Course, enrs []enrollment.Enrollment) []TopCourse {
	type agg struct {
		count  int
		pctSum int
	}
	byCourse := make(map[string]*agg, len(courses))
	for _, e := range enrs {
		a, ok := byCourse[e.CourseID]
		if !ok {
			a = new(agg)
			byCourse[e.CourseID] = a
		}
		a.count++
		a.pctSum += e.ProgressPercent
	}

	top := make([]TopCourse, 0, len(courses))
	for _, c := range courses {
		tc := TopCourse{ID: c.ID, Title: c.Title, Image: c.Image, StudentsCount: c.StudentsCount}
		if a, ok := byCourse[c.ID]; ok {
			tc.Enrollments = a.count
			tc.AvgCompletion = int(math.Round(float64(a.pctSum) / float64(a.count)))
		}
		top = append(top, tc)
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].Enrollments > top[j].Enrollments })
	if len(top) > topCoursesLimit {
		top = top[:topCoursesLimit]
	}
	return top
}

func (svc *service) recentEnrollments(
	ctx context.Context,
	courses []course.Course,
	enrs []enrollment.Enrollment,
	now time.Time,
) ([]RecentEnrollment, error) {
	titles := make(map[string]string, len(courses))
	for _, c := range courses {
		titles[c.ID] = c.Title
	}

	recentEnrs := make([]enrollment.Enrollment, 0)
	ids := make([]string, 0)
	for _, e := range enrs {
		if now.Sub(e.CreatedAt) <= recentEnrollWindow {
			recentEnrs = append(recentEnrs, e)
			ids = append(ids, e.StudentID)
		}
	}
	sort.SliceStable(recentEnrs, func(i, j int) bool { return recentEnrs[i].CreatedAt.After(recentEnrs[j].CreatedAt) })

	students, err := svc.usrSvc.GetSummaries(ctx, ids...)
	if err != nil {
		return nil, err
	}
	recent := make([]RecentEnrollment, 0, len(recentEnrs))
	for _, e := range recentEnrs {
		student, ok := students[e.StudentID]
		if !ok {
			student = user.Summary{ID: e.StudentID}
		}
		recent = append(recent, RecentEnrollment{
			Student:    student,
			Course:     CourseRef{ID: e.CourseID, Title: titles[e.CourseID]},
			EnrolledAt: e.CreatedAt,
		})
	}
	return recent, nil
}

func uploadDates(courses []course.Course) []time.Time {
	dates := make([]time.Time, 0, len(courses))
	for _, c := range courses {
		dates = append(dates, c.CreatedAt)
		for _, l := range c.Lectures {
			dates = append(dates, l.CreatedAt)
		}
	}
	return dates
}

// UploadStreak counts the consecutive days with at least one upload, going back from the latest upload day.
// It also returns the latest upload time, nil without uploads.
func UploadStreak(dates []time.Time, loc *time.Location) (int, *time.Time) {
	if len(dates) == 0 {
		return 0, nil
	}
	sorted := append([]time.Time(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].After(sorted[j]) })
	last := sorted[0]

	day := func(t time.Time) time.Time {
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}

	streak := 1
	prev := day(sorted[0])
	for _, t := range sorted[1:] {
		d := day(t)
		if d.Equal(prev) {
			continue
		}
		if d.Equal(prev.AddDate(0, 0, -1)) {
			streak++
			prev = d
			continue
		}
		break
	}
	return streak, &last
}
