package echoapi

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/backend/core/certificate"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/dashboard"
	"github.com/eduplatform/backend/core/enrollment"
	"github.com/eduplatform/backend/core/user"
	emailsvc "github.com/eduplatform/backend/services/email"
	testutil "github.com/eduplatform/backend/tests"
)

type enrollmentResp struct {
	Success string                `json:"success"`
	Data    enrollment.Enrollment `json:"data"`
}

func progressBody(lectureID string, completed bool) []byte {
	if completed {
		return []byte(`{"lectureId": "` + lectureID + `", "completed": true, "timeSpent": 30}`)
	}
	return []byte(`{"lectureId": "` + lectureID + `", "completed": false, "timeSpent": 30}`)
}

func Test_enrollmentApi_enroll(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	student := env.createUser(t, "Student", "student@test.cd", user.RoleStudent, user.StatusActive)
	c := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Go Basics", "L1", "L2")
	path := "/v1/enrollments/" + c.ID

	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodPost, path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "tutors cannot enroll", method: http.MethodPost, path: path, token: env.getToken(t, tutor),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "unknown course", method: http.MethodPost, path: "/v1/enrollments/00000000-0000-0000-0000-000000000000",
			token: env.getToken(t, student), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"}),
		},
	})

	token := env.getToken(t, student)
	emailsvc.ResetSentMessages()

	rec := env.serve(newAuthRequest(http.MethodPost, path, token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first enrollmentResp
	decode(t, rec, &first)
	assert.Equal(t, "Enrolled successfully", first.Success)
	assert.Equal(t, student.ID, first.Data.StudentID)
	assert.Equal(t, c.ID, first.Data.CourseID)
	assert.Empty(t, first.Data.Progress)
	assert.Zero(t, first.Data.ProgressPercent)
	assert.False(t, first.Data.IsBlocked)

	sent := emailsvc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "enroll-user", sent[0].TemplateName)
	assert.Equal(t, student.Email, sent[0].To[0].Address)
	assert.Equal(t, "enroll-tutor", sent[1].TemplateName)
	assert.Equal(t, tutor.Email, sent[1].To[0].Address)

	// enrolling again is a no-op
	rec = env.serve(newAuthRequest(http.MethodPost, path, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var second enrollmentResp
	decode(t, rec, &second)
	assert.Equal(t, "Already enrolled", second.Success)
	assert.Equal(t, first.Data.ID, second.Data.ID)
	assert.Len(t, emailsvc.SentMessages(), 2)

	got, err := env.courseRepo.GetCourse(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.StudentsCount)
}

func Test_enrollmentApi_progress(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	student := env.createUser(t, "Student", "student@test.cd", user.RoleStudent, user.StatusActive)
	c := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Go Basics", "L1", "L2")
	l1, l2 := c.Lectures[0].ID, c.Lectures[1].ID
	token := env.getToken(t, student)
	path := "/v1/enrollments/" + c.ID + "/progress"

	runHTTPTests(t, env, []httpTest{
		{
			name: "not enrolled", path: path, token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "enrollment not found"}),
		},
		{
			name: "record while not enrolled", method: http.MethodPost, path: path, token: token, body: progressBody(l1, true),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "enrollment not found"}),
		},
	})

	_, _, err := env.enrSvc.Enroll(context.Background(), student.Actor(), c.ID)
	require.NoError(t, err)

	runHTTPTests(t, env, []httpTest{
		{
			name: "lectureId & completed required", method: http.MethodPost, path: path, token: token, body: []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"lectureId": "this field is required",
				"completed": "this field is required",
			}),
		},
		{
			name: "completed required", method: http.MethodPost, path: path, token: token, body: []byte(`{"lectureId": "` + l1 + `"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"completed": "this field is required"}),
		},
		{
			name: "tutors have no progress", method: http.MethodPost, path: path, token: env.getToken(t, tutor), body: progressBody(l1, true),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
	})

	record := func(t *testing.T, lectureID string, completed bool) enrollment.Enrollment {
		t.Helper()
		rec := env.serve(newAuthRequest(http.MethodPost, path, token, progressBody(lectureID, completed)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp enrollmentResp
		decode(t, rec, &resp)
		assert.Equal(t, "Progress updated", resp.Success)
		return resp.Data
	}

	enr := record(t, l1, true)
	assert.Equal(t, 1, enr.CompletedLectures)
	assert.Equal(t, 2, enr.TotalLectures)
	assert.Equal(t, 50, enr.ProgressPercent)
	assert.NotNil(t, enr.LastWatchedAt)

	enr = record(t, l2, true)
	assert.Equal(t, 100, enr.ProgressPercent)

	// a new lecture lowers the percentage on the next report
	_, err = env.courseSvc.AddLecture(context.Background(), tutor.Actor(), c.ID, course.NewLecture{
		Title: "L3", VideoURL: "/uploads/videos/l3.mp4", Duration: 5, Order: 3,
	})
	require.NoError(t, err)

	// the stored percentage only moves on the next report
	rec := env.serve(newAuthRequest(http.MethodGet, path, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stored enrollment.Enrollment
	decode(t, rec, &stored)
	assert.Equal(t, 100, stored.ProgressPercent)
	assert.Equal(t, 2, stored.TotalLectures)

	enr = record(t, l2, true)
	assert.Equal(t, 2, enr.CompletedLectures)
	assert.Equal(t, 3, enr.TotalLectures)
	assert.Equal(t, 67, enr.ProgressPercent)
	require.Len(t, enr.Progress, 2)
	assert.Equal(t, 60.0, enr.Progress[1].TimeSpent)

	// un-completing a lecture
	enr = record(t, l1, false)
	assert.Equal(t, 1, enr.CompletedLectures)
	assert.Equal(t, 33, enr.ProgressPercent)

	rec = env.serve(newAuthRequest(http.MethodGet, path, token))
	require.Equal(t, http.StatusOK, rec.Code)
	stored = enrollment.Enrollment{}
	decode(t, rec, &stored)
	assert.Equal(t, enr.ID, stored.ID)
	assert.Equal(t, 33, stored.ProgressPercent)
}

func Test_enrollmentApi_students(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	other := env.createUser(t, "Other", "other@test.cd", user.RoleTutor, user.StatusActive)
	admin := env.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, user.StatusActive)
	student := env.createUser(t, "Student", "student@test.cd", user.RoleStudent, user.StatusActive)
	c := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Go Basics", "L1", "L2")
	tutorToken := env.getToken(t, tutor)
	studentToken := env.getToken(t, student)

	_, _, err := env.enrSvc.Enroll(context.Background(), student.Actor(), c.ID)
	require.NoError(t, err)
	completed := true
	_, err = env.enrSvc.RecordProgress(context.Background(), student.Actor(), c.ID, enrollment.RecordProgress{
		LectureID: c.Lectures[0].ID, Completed: &completed, TimeSpent: 40,
	})
	require.NoError(t, err)

	base := "/v1/enrollments/" + c.ID + "/students"
	blockPath := base + "/" + student.ID
	unblockPath := blockPath + "/unblock"

	runHTTPTests(t, env, []httpTest{
		{name: "students cannot list", path: base, token: studentToken, wantCode: http.StatusForbidden},
		{
			name: "other tutors cannot list", path: base, token: env.getToken(t, other),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you are not allowed to manage this course"}),
		},
		{
			name: "other tutors cannot block", method: http.MethodDelete, path: blockPath, token: env.getToken(t, other),
			wantCode: http.StatusForbidden,
		},
		{
			name: "other tutors cannot see details", path: "/v1/courses/" + c.ID + "/details", token: env.getToken(t, other),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "you are not allowed to manage this course"}),
		},
		{
			name: "students cannot see details", path: "/v1/courses/" + c.ID + "/details", token: studentToken,
			wantCode: http.StatusForbidden,
		},
		{
			name: "unknown enrollment", method: http.MethodDelete, path: base + "/" + other.ID, token: tutorToken,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "enrollment not found"}),
		},
	})

	checkMsg := func(t *testing.T, method, path, token, want string) {
		t.Helper()
		rec := env.serve(newAuthRequest(method, path, token))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp enrollmentResp
		decode(t, rec, &resp)
		assert.Equal(t, want, resp.Success)
	}
	myCourses := func(t *testing.T) []enrollment.Enrollment {
		t.Helper()
		rec := env.serve(newAuthRequest(http.MethodGet, "/v1/enrollments/my", studentToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var enrs []enrollment.Enrollment
		decode(t, rec, &enrs)
		return enrs
	}

	require.Len(t, myCourses(t), 1)
	assert.Equal(t, 50, myCourses(t)[0].ProgressPercent)

	checkMsg(t, http.MethodDelete, blockPath, tutorToken, "Student blocked successfully")
	checkMsg(t, http.MethodDelete, blockPath, env.getToken(t, admin), "Student is already blocked")
	assert.Empty(t, myCourses(t), "blocked enrollments are hidden")

	// blocked students still show up for the tutor
	rec := env.serve(newAuthRequest(http.MethodGet, base, tutorToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var enrs []enrollment.Enrollment
	decode(t, rec, &enrs)
	require.Len(t, enrs, 1)
	assert.True(t, enrs[0].IsBlocked)
	require.NotNil(t, enrs[0].Student)
	assert.Equal(t, "Student", enrs[0].Student.Name)

	rec = env.serve(newAuthRequest(http.MethodGet, "/v1/courses/"+c.ID+"/details", tutorToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stats enrollment.CourseStats
	decode(t, rec, &stats)
	assert.Equal(t, c.ID, stats.Course.ID)
	assert.Equal(t, 1, stats.RegisteredUsers)
	require.Len(t, stats.EnrolledUsers, 1)
	assert.True(t, stats.EnrolledUsers[0].IsBlocked)
	assert.Equal(t, 50, stats.EnrolledUsers[0].ProgressPercent)

	// admins manage every course
	rec = env.serve(newAuthRequest(http.MethodGet, "/v1/courses/"+c.ID+"/details", env.getToken(t, admin)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var adminStats enrollment.CourseStats
	decode(t, rec, &adminStats)
	assert.Equal(t, c.ID, adminStats.Course.ID)
	require.Len(t, adminStats.EnrolledUsers, 1)
	assert.Equal(t, student.ID, adminStats.EnrolledUsers[0].Student.ID)

	// re-enrolling does not lift a block
	rec = env.serve(newAuthRequest(http.MethodPost, "/v1/enrollments/"+c.ID, studentToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var again enrollmentResp
	decode(t, rec, &again)
	assert.True(t, again.Data.IsBlocked)

	checkMsg(t, http.MethodPatch, unblockPath, tutorToken, "Student unblocked successfully")
	checkMsg(t, http.MethodPatch, unblockPath, tutorToken, "Student is not blocked")

	// progress survives the block
	enrs = myCourses(t)
	require.Len(t, enrs, 1)
	assert.False(t, enrs[0].IsBlocked)
	assert.Equal(t, 50, enrs[0].ProgressPercent)
	assert.Equal(t, 1, enrs[0].CompletedLectures)
	require.Len(t, enrs[0].Progress, 1)
	assert.Equal(t, c.Lectures[0].ID, enrs[0].Progress[0].LectureID)
	assert.Equal(t, 40.0, enrs[0].Progress[0].TimeSpent)
}

func Test_enrollmentApi_my(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	admin := env.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, user.StatusActive)
	student := env.createUser(t, "Student", "student@test.cd", user.RoleStudent, user.StatusActive)
	mine := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Mine", "L1")
	pending := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Pending")
	pending.Status = course.StatusPending
	_, err := env.courseRepo.UpdateCourse(context.Background(), pending)
	require.NoError(t, err)
	_, _, err = env.enrSvc.Enroll(context.Background(), student.Actor(), mine.ID)
	require.NoError(t, err)

	t.Run("student", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodGet, "/v1/enrollments/my", env.getToken(t, student)))
		require.Equal(t, http.StatusOK, rec.Code)
		var enrs []enrollment.Enrollment
		decode(t, rec, &enrs)
		require.Len(t, enrs, 1)
		require.NotNil(t, enrs[0].Course)
		assert.Equal(t, "Mine", enrs[0].Course.Title)
	})

	t.Run("tutor", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodGet, "/v1/enrollments/my", env.getToken(t, tutor)))
		require.Equal(t, http.StatusOK, rec.Code)
		var courses []course.Course
		decode(t, rec, &courses)
		assert.Equal(t, []string{"Pending", "Mine"}, courseTitles(courses))
	})

	t.Run("admin", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodGet, "/v1/enrollments/my", env.getToken(t, admin)))
		require.Equal(t, http.StatusOK, rec.Code)
		var courses []course.Course
		decode(t, rec, &courses)
		assert.Equal(t, []string{"Mine"}, courseTitles(courses))
	})
}

func Test_enrollmentApi_certificates(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	student := env.createUser(t, "Jane Doe", "jane@test.cd", user.RoleStudent, user.StatusActive)
	c := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Go Basics", "L1")
	token := env.getToken(t, student)
	download := "/v1/certificates/" + c.ID + "/download"

	runHTTPTests(t, env, []httpTest{
		{name: "tutors have no certificates", path: "/v1/certificates", token: env.getToken(t, tutor), wantCode: http.StatusForbidden},
		{name: "none yet", path: "/v1/certificates", token: token, wantCode: http.StatusOK, wantData: marchallList(t)},
		{
			name: "not enrolled", path: download, token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "enrollment not found"}),
		},
	})

	_, _, err := env.enrSvc.Enroll(context.Background(), student.Actor(), c.ID)
	require.NoError(t, err)

	runHTTPTests(t, env, []httpTest{
		{
			name: "not completed", path: download, token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "certificate not available, course not completed"}),
		},
	})

	completed := true
	enr, err := env.enrSvc.RecordProgress(context.Background(), student.Actor(), c.ID, enrollment.RecordProgress{
		LectureID: c.Lectures[0].ID, Completed: &completed,
	})
	require.NoError(t, err)
	require.NotNil(t, enr.LastWatchedAt)

	rec := env.serve(newAuthRequest(http.MethodGet, "/v1/certificates", token))
	require.Equal(t, http.StatusOK, rec.Code)
	var certs []certificate.Certificate
	decode(t, rec, &certs)
	require.Len(t, certs, 1)
	assert.Equal(t, "Go Basics", certs[0].CourseTitle)
	assert.Equal(t, "Jane Doe", certs[0].StudentName)
	assert.True(t, enr.LastWatchedAt.Equal(certs[0].CompletedAt))

	rec = env.serve(newAuthRequest(http.MethodGet, download, token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="certificate-`+c.ID+`.png"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))

	// blocking hides the certificate without moving its completion date
	_, _, err = env.enrSvc.Block(context.Background(), tutor.Actor(), c.ID, student.ID)
	require.NoError(t, err)
	runHTTPTests(t, env, []httpTest{
		{name: "blocked: not listed", path: "/v1/certificates", token: token, wantCode: http.StatusOK, wantData: marchallList(t)},
		{
			name: "blocked: no download", path: download, token: token, wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "certificate not available, enrollment is blocked"}),
		},
	})

	_, _, err = env.enrSvc.Unblock(context.Background(), tutor.Actor(), c.ID, student.ID)
	require.NoError(t, err)
	rec = env.serve(newAuthRequest(http.MethodGet, "/v1/certificates", token))
	require.Equal(t, http.StatusOK, rec.Code)
	certs = nil
	decode(t, rec, &certs)
	require.Len(t, certs, 1)
	assert.True(t, enr.LastWatchedAt.Equal(certs[0].CompletedAt), "unblocking keeps the completion date")
}

func Test_enrollmentApi_dashboards(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	s1 := env.createUser(t, "S1", "s1@test.cd", user.RoleStudent, user.StatusActive)
	s2 := env.createUser(t, "S2", "s2@test.cd", user.RoleStudent, user.StatusActive)
	c1 := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "C1", "L1")
	c2 := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "C2", "L1", "L2")

	for _, enr := range []struct {
		student user.User
		course  course.Course
	}{{s1, c1}, {s1, c2}, {s2, c2}} {
		_, _, err := env.enrSvc.Enroll(context.Background(), enr.student.Actor(), enr.course.ID)
		require.NoError(t, err)
	}
	completed := true
	_, err := env.enrSvc.RecordProgress(context.Background(), s1.Actor(), c1.ID, enrollment.RecordProgress{
		LectureID: c1.Lectures[0].ID, Completed: &completed,
	})
	require.NoError(t, err)

	t.Run("student", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodGet, "/v1/enrollments/dashboard", env.getToken(t, s1)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dash dashboard.StudentDashboard
		decode(t, rec, &dash)
		assert.Equal(t, 2, dash.TotalEnrolled)
		assert.Equal(t, 1, dash.CompletedCourses)
		assert.Equal(t, 1, dash.Certificates)
		assert.Len(t, dash.Activity, 2)
	})

	t.Run("tutor", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodGet, "/v1/tutor/dashboard", env.getToken(t, tutor)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var dash dashboard.TutorDashboard
		decode(t, rec, &dash)
		assert.Equal(t, 2, dash.KPIs.TotalCourses)
		assert.Equal(t, 3, dash.KPIs.TotalStudents)
		assert.Equal(t, 3, dash.KPIs.TotalLectures)
		assert.Equal(t, 1, dash.KPIs.ActiveStudents)
		assert.Equal(t, 3, dash.KPIs.RecentTwoDaysEnrollmentsCount)
		assert.Equal(t, 1, dash.KPIs.Streak)
		require.NotEmpty(t, dash.TopCourses)
		assert.Equal(t, "C2", dash.TopCourses[0].Title)
		assert.Equal(t, 2, dash.TopCourses[0].Enrollments)
		assert.Len(t, dash.RecentEnrollments, 3)
		assert.NotEmpty(t, dash.MotivationalTip)
		assert.NotNil(t, dash.LastUpload)
	})

	runHTTPTests(t, env, []httpTest{
		{name: "students have no tutor dashboard", path: "/v1/tutor/dashboard", token: env.getToken(t, s1), wantCode: http.StatusForbidden},
		{name: "tutors have no student dashboard", path: "/v1/enrollments/dashboard", token: env.getToken(t, tutor), wantCode: http.StatusForbidden},
	})
}
