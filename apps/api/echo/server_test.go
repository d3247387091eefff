package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/certificate"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/dashboard"
	"github.com/eduplatform/backend/core/enrollment"
	"github.com/eduplatform/backend/core/review"
	"github.com/eduplatform/backend/core/user"
	appfs "github.com/eduplatform/backend/fs"
	certsvc "github.com/eduplatform/backend/services/certificate"
	emailsvc "github.com/eduplatform/backend/services/email"
	locksvc "github.com/eduplatform/backend/services/lock"
	mediasvc "github.com/eduplatform/backend/services/media"
	inmemdb "github.com/eduplatform/backend/storage/database/inmem"
	testutil "github.com/eduplatform/backend/tests"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type stubProber struct{ secs float64 }

func (p stubProber) Probe(context.Context, string) (float64, error) { return p.secs, nil }

type testEnv struct {
	app  Server
	conf *core.Config
	auth *authenticator

	usrRepo    user.Repository
	courseRepo course.Repository
	enrRepo    enrollment.Repository

	usrSvc    user.Service
	courseSvc course.Service
	enrSvc    enrollment.Service
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	conf := testutil.Config(t.TempDir())
	logger := testutil.Logger(conf)
	validate, translator := testutil.Validator()
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	emailsvc.ResetSentMessages()

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	courseRepo := inmemdb.NewCourseRepository(db)
	enrRepo := inmemdb.NewEnrollmentRepository(db)
	reviewRepo := inmemdb.NewReviewRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	courseSvc := course.NewService(courseRepo, usrSvc)
	enrSvc := enrollment.NewService(
		enrRepo, courseSvc, usrSvc, inmemdb.Transactor{}, locksvc.NewMemoryLocker(), mailSvc, logger,
	)
	renderer, err := certsvc.NewRenderer()
	require.NoError(t, err)

	storage := mediasvc.NewLocalStorage(conf.Media.UploadDir, conf.Media.PublicPrefix)

	// set up server
	app := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		Uploader:       mediasvc.NewUploader(storage, stubProber{secs: 125}),
		UserSvc:        usrSvc,
		CourseSvc:      courseSvc,
		EnrollmentSvc:  enrSvc,
		ReviewSvc:      review.NewService(reviewRepo, courseSvc, usrSvc),
		CertificateSvc: certificate.NewService(enrSvc, usrSvc, renderer, conf),
		DashboardSvc:   dashboard.NewService(courseSvc, enrSvc, usrSvc),
	})
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	return &testEnv{
		app:        app,
		conf:       conf,
		auth:       newAuthenticator(conf, usrSvc),
		usrRepo:    usrRepo,
		courseRepo: courseRepo,
		enrRepo:    enrRepo,
		usrSvc:     usrSvc,
		courseSvc:  courseSvc,
		enrSvc:     enrSvc,
	}
}

func (env *testEnv) createUser(t *testing.T, name, email, role, status string) user.User {
	return testutil.CreateUser(t, env.usrRepo, name, email, role, status)
}

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	token, err := env.auth.accessToken(usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// serve runs the request through the app & returns the recorded response.
func (env *testEnv) serve(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	env.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

type formFile struct {
	field, name string
	content     []byte
}

// newMultipartRequest builds an authenticated multipart/form-data request.
func newMultipartRequest(
	t *testing.T,
	method, path, token string,
	values map[string][]string,
	files ...formFile,
) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, vals := range values {
		for _, v := range vals {
			require.NoError(t, w.WriteField(k, v))
		}
	}
	for _, f := range files {
		fw, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// decode unmarshals the response body into v.
func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := env.serve(newAuthRequest(method, tt.path, tt.token, tt.body))
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestServer_home(t *testing.T) {
	env := setup(t)
	rec := env.serve(newRequest(http.MethodGet, "/"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Edu-Platform API!", rec.Body.String())
}
