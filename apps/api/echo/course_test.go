package echoapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/review"
	"github.com/eduplatform/backend/core/user"
	testutil "github.com/eduplatform/backend/tests"
)

var mp4Header = []byte{
	0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm',
	0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2',
}

type coursePage struct {
	Data       []course.Course `json:"data"`
	Pagination core.Pagination `json:"pagination"`
}

type courseResp struct {
	Success string        `json:"success"`
	Data    course.Course `json:"data"`
}

func courseTitles(courses []course.Course) []string {
	titles := make([]string, 0, len(courses))
	for _, c := range courses {
		titles = append(titles, c.Title)
	}
	return titles
}

func Test_courseApi_list(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	admin := env.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, user.StatusActive)
	student := env.createUser(t, "Student", "student@test.cd", user.RoleStudent, user.StatusActive)

	testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Go Basics", "L1")
	testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Advanced Go", "L1", "L2")
	pending := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Draft Course")
	pending.Status = course.StatusPending
	_, err := env.courseRepo.UpdateCourse(context.Background(), pending)
	require.NoError(t, err)

	path := func(q url.Values) string { return "/v1/courses?" + q.Encode() }

	tests := []struct {
		name      string
		path      string
		token     string
		want      []string
		wantTotal int
	}{
		{name: "anonymous sees approved", path: "/v1/courses", want: []string{"Advanced Go", "Go Basics"}, wantTotal: 2},
		{name: "students see approved", path: "/v1/courses", token: env.getToken(t, student), want: []string{"Advanced Go", "Go Basics"}, wantTotal: 2},
		{
			name: "status ignored for non admins", path: path(url.Values{"status": {"pending"}}),
			want: []string{"Advanced Go", "Go Basics"}, wantTotal: 2,
		},
		{
			name: "admins see everything", path: "/v1/courses", token: env.getToken(t, admin),
			want: []string{"Draft Course", "Advanced Go", "Go Basics"}, wantTotal: 3,
		},
		{
			name: "admins filter by status", path: path(url.Values{"status": {"pending"}}), token: env.getToken(t, admin),
			want: []string{"Draft Course"}, wantTotal: 1,
		},
		{name: "search", path: path(url.Values{"search": {"ADVANCED"}}), want: []string{"Advanced Go"}, wantTotal: 1},
		{name: "paginated", path: path(url.Values{"page": {"2"}, "limit": {"1"}}), want: []string{"Go Basics"}, wantTotal: 2},
		{name: "past the last page", path: path(url.Values{"page": {"3"}, "limit": {"1"}}), want: []string{}, wantTotal: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.serve(newAuthRequest(http.MethodGet, tt.path, tt.token))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var page coursePage
			decode(t, rec, &page)
			assert.Equal(t, tt.want, courseTitles(page.Data))
			assert.Equal(t, tt.wantTotal, page.Pagination.TotalRecords)
			for _, c := range page.Data {
				require.NotNil(t, c.Tutor)
				assert.Equal(t, "Tutor", c.Tutor.Name)
			}
		})
	}

	t.Run("pagination", func(t *testing.T) {
		rec := env.serve(newRequest(http.MethodGet, path(url.Values{"limit": {"1"}})))
		var page coursePage
		decode(t, rec, &page)
		assert.Equal(t, core.Pagination{Page: 1, Limit: 1, TotalPages: 2, TotalRecords: 2}, page.Pagination)
	})
}

func Test_courseApi_featuredAndGet(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	for _, title := range []string{"F1", "F2", "F3", "F4"} {
		c := testutil.CreateCourse(t, env.courseRepo, tutor.ID, title)
		c.IsFeatured = true
		_, err := env.courseRepo.UpdateCourse(context.Background(), c)
		require.NoError(t, err)
	}
	plain := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Plain", "L1")

	rec := env.serve(newRequest(http.MethodGet, "/v1/courses/featured-courses"))
	require.Equal(t, http.StatusOK, rec.Code)
	var featured []course.Course
	decode(t, rec, &featured)
	assert.Equal(t, []string{"F4", "F3", "F2"}, courseTitles(featured))

	rec = env.serve(newRequest(http.MethodGet, "/v1/courses/"+plain.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var got course.Course
	decode(t, rec, &got)
	assert.Equal(t, plain.ID, got.ID)
	require.Len(t, got.Lectures, 1)
	require.NotNil(t, got.Tutor)
	assert.Equal(t, tutor.ID, got.Tutor.ID)

	runHTTPTests(t, env, []httpTest{
		{
			name: "unknown course", path: "/v1/courses/00000000-0000-0000-0000-000000000000",
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "course not found"}),
		},
	})
}

func Test_courseApi_mutations(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	other := env.createUser(t, "Other", "other@test.cd", user.RoleTutor, user.StatusActive)
	admin := env.createUser(t, "Admin", "admin@test.cd", user.RoleAdmin, user.StatusActive)
	student := env.createUser(t, "Student", "student@test.cd", user.RoleStudent, user.StatusActive)
	tutorToken := env.getToken(t, tutor)

	newCourse := marchallObj(t, map[string]interface{}{
		"title": " Go Concurrency ", "description": "Channels & goroutines", "curriculum": []string{"channels, select", " ", "sync"},
	})

	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/courses", body: newCourse, wantCode: http.StatusUnauthorized},
		{
			name: "students cannot create", method: http.MethodPost, path: "/v1/courses", token: env.getToken(t, student),
			body: newCourse, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "title required", method: http.MethodPost, path: "/v1/courses", token: tutorToken,
			body: []byte(`{"description": "desc"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		},
		{
			name: "invalid category", method: http.MethodPost, path: "/v1/courses", token: tutorToken,
			body: []byte(`{"title": "Web", "description": "desc", "category": "<b>Web</b>"}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"category": "only letters, digits, spaces and + # & . / _ - are allowed"}),
		},
	})

	rec := env.serve(newAuthRequest(http.MethodPost, "/v1/courses", tutorToken,
		[]byte(`{"title": "Modern C++", "description": "desc", "category": "C++"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var cpp courseResp
	decode(t, rec, &cpp)
	assert.Equal(t, "C++", cpp.Data.Category)

	// tutors create pending courses
	rec = env.serve(newAuthRequest(http.MethodPost, "/v1/courses", tutorToken, newCourse))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created courseResp
	decode(t, rec, &created)
	c := created.Data
	assert.Equal(t, "Go Concurrency", c.Title)
	assert.Equal(t, course.StatusPending, c.Status)
	assert.Equal(t, course.DefaultCategory, c.Category)
	assert.Equal(t, course.LevelBeginner, c.Level)
	assert.Equal(t, []string{"channels", "select", "sync"}, c.Curriculum)
	assert.Equal(t, tutor.ID, c.TutorID)

	// admins create approved ones
	rec = env.serve(newAuthRequest(http.MethodPost, "/v1/courses", env.getToken(t, admin), newCourse))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var byAdmin courseResp
	decode(t, rec, &byAdmin)
	assert.Equal(t, course.StatusApproved, byAdmin.Data.Status)

	coursePath := "/v1/courses/" + c.ID
	runHTTPTests(t, env, []httpTest{
		{
			name: "other tutors cannot update", method: http.MethodPut, path: coursePath, token: env.getToken(t, other),
			body: []byte(`{"title": "Mine now"}`), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "you are not allowed to manage this course"}),
		},
		{
			name: "other tutors cannot delete", method: http.MethodDelete, path: coursePath, token: env.getToken(t, other),
			wantCode: http.StatusForbidden,
		},
	})

	t.Run("partial update", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodPut, coursePath, tutorToken, []byte(`{"level": "Advanced", "isFeatured": true}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated courseResp
		decode(t, rec, &updated)
		assert.Equal(t, "Go Concurrency", updated.Data.Title)
		assert.Equal(t, course.LevelAdvanced, updated.Data.Level)
		assert.False(t, updated.Data.IsFeatured, "only admins feature courses")
	})

	t.Run("multipart update with image", func(t *testing.T) {
		rec := env.serve(newMultipartRequest(
			t, http.MethodPut, coursePath, tutorToken,
			map[string][]string{"title": {"Go Concurrency II"}, "published": {"true"}},
			formFile{field: "image", name: "cover art.png", content: pngBytes(t, 1920, 1080)},
		))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var updated courseResp
		decode(t, rec, &updated)
		assert.Equal(t, "Go Concurrency II", updated.Data.Title)
		assert.True(t, updated.Data.Published)
		assert.Regexp(t, `^/uploads/courses/cover-art-\d+\.png$`, updated.Data.Image)
		assert.Equal(t, course.LevelAdvanced, updated.Data.Level)
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodDelete, coursePath, tutorToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		rec = env.serve(newRequest(http.MethodGet, coursePath))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_courseApi_lectures(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	other := env.createUser(t, "Other", "other@test.cd", user.RoleTutor, user.StatusActive)
	tutorToken := env.getToken(t, tutor)
	c := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Go Basics", "L1")
	lecturesPath := "/v1/courses/" + c.ID + "/lectures"

	t.Run("non owners cannot add", func(t *testing.T) {
		rec := env.serve(newMultipartRequest(
			t, http.MethodPost, lecturesPath, env.getToken(t, other), map[string][]string{"title": {"L2"}},
			formFile{field: "video", name: "l2.mp4", content: mp4Header},
		))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("video required", func(t *testing.T) {
		rec := env.serve(newMultipartRequest(t, http.MethodPost, lecturesPath, tutorToken, map[string][]string{"title": {"L2"}}))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"video": "this field is required"}),
		}, rec)
	})

	t.Run("title required", func(t *testing.T) {
		rec := env.serve(newMultipartRequest(
			t, http.MethodPost, lecturesPath, tutorToken, nil, formFile{field: "video", name: "l2.mp4", content: mp4Header},
		))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"title": "this field is required"}),
		}, rec)
	})

	t.Run("video must be a video", func(t *testing.T) {
		rec := env.serve(newMultipartRequest(
			t, http.MethodPost, lecturesPath, tutorToken, map[string][]string{"title": {"L2"}},
			formFile{field: "video", name: "l2.mp4", content: pngBytes(t, 10, 10)},
		))
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"video": "file type image/png is not allowed"}),
		}, rec)
	})

	var lectureID string
	t.Run("add", func(t *testing.T) {
		rec := env.serve(newMultipartRequest(
			t, http.MethodPost, lecturesPath, tutorToken,
			map[string][]string{"title": {"Channels"}, "order": {"2"}, "isPreview": {"true"}, "notes": {"Read the notes"}},
			formFile{field: "video", name: "channels.mp4", content: mp4Header},
			formFile{field: "notes", name: "notes.txt", content: []byte("chan T\n")},
		))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var resp courseResp
		decode(t, rec, &resp)
		require.Len(t, resp.Data.Lectures, 2)
		lec := resp.Data.Lectures[1]
		lectureID = lec.ID
		assert.Equal(t, "Channels", lec.Title)
		assert.Equal(t, 2, lec.Order)
		assert.True(t, lec.IsPreview)
		assert.Equal(t, "Read the notes", lec.Notes)
		assert.Equal(t, 2.08, lec.Duration)
		assert.True(t, strings.HasPrefix(lec.VideoURL, "/uploads/videos/channels-"))
		require.Len(t, lec.NoteFiles, 1)
		assert.True(t, strings.HasPrefix(lec.NoteFiles[0], "/uploads/notes/notes-"))
		assert.Equal(t, 12.08, resp.Data.TotalDuration)
	})

	t.Run("update", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodPut, lecturesPath+"/"+lectureID, tutorToken, []byte(`{"title": "Channels & select"}`)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp courseResp
		decode(t, rec, &resp)
		lec, ok := resp.Data.Lecture(lectureID)
		require.True(t, ok)
		assert.Equal(t, "Channels & select", lec.Title)
		assert.Equal(t, 2.08, lec.Duration)
	})

	t.Run("update unknown lecture", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodPut, lecturesPath+"/nope", tutorToken, []byte(`{"title": "x"}`)))
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "lecture not found"})}, rec)
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.serve(newAuthRequest(http.MethodDelete, lecturesPath+"/"+lectureID, tutorToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp courseResp
		decode(t, rec, &resp)
		require.Len(t, resp.Data.Lectures, 1)
		assert.Equal(t, 10.0, resp.Data.TotalDuration)
	})
}

func Test_courseApi_reviews(t *testing.T) {
	env := setup(t)
	tutor := env.createUser(t, "Tutor", "tutor@test.cd", user.RoleTutor, user.StatusActive)
	s1 := env.createUser(t, "S1", "s1@test.cd", user.RoleStudent, user.StatusActive)
	s2 := env.createUser(t, "S2", "s2@test.cd", user.RoleStudent, user.StatusActive)
	c := testutil.CreateCourse(t, env.courseRepo, tutor.ID, "Go Basics", "L1")
	base := "/v1/courses/" + c.ID

	runHTTPTests(t, env, []httpTest{
		{
			name: "no reviews yet", path: base + "/rating", wantCode: http.StatusOK,
			wantData: marchallObj(t, review.Summary{}),
		},
		{name: "auth required", method: http.MethodPost, path: base + "/review", body: []byte(`{"rating": 5}`), wantCode: http.StatusUnauthorized},
		{
			name: "rating out of range", method: http.MethodPost, path: base + "/review", token: env.getToken(t, s1),
			body: []byte(`{"rating": 6}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown course", method: http.MethodPost, path: "/v1/courses/00000000-0000-0000-0000-000000000000/review",
			token: env.getToken(t, s1), body: []byte(`{"rating": 4}`), wantCode: http.StatusNotFound,
		},
		{name: "s1 rates 2", method: http.MethodPost, path: base + "/review", token: env.getToken(t, s1), body: []byte(`{"rating": 2}`), wantCode: http.StatusOK},
		{name: "s1 changes to 4", method: http.MethodPost, path: base + "/review", token: env.getToken(t, s1), body: []byte(`{"rating": 4, "review": "nice"}`), wantCode: http.StatusOK},
		{name: "s2 rates 5", method: http.MethodPost, path: base + "/review", token: env.getToken(t, s2), body: []byte(`{"rating": 5}`), wantCode: http.StatusOK},
		{
			name: "rating", path: base + "/rating", wantCode: http.StatusOK,
			wantData: marchallObj(t, review.Summary{AvgRating: 4.5, ReviewCount: 2}),
		},
	})

	rec := env.serve(newRequest(http.MethodGet, base+"/review"))
	require.Equal(t, http.StatusOK, rec.Code)
	var revs review.Reviews
	decode(t, rec, &revs)
	assert.Equal(t, 4.5, revs.AvgRating)
	require.Len(t, revs.Reviews, 2)
	assert.Equal(t, s2.ID, revs.Reviews[0].UserID)
	assert.Equal(t, "nice", revs.Reviews[1].Review)
	require.NotNil(t, revs.Reviews[1].User)
	assert.Equal(t, "S1", revs.Reviews[1].User.Name)
}
