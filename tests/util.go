// Package testutil holds the fixtures shared by the test suites.
package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/user"
	logsvc "github.com/eduplatform/backend/services/logger"
)

const Password = "Xk9#mPq2vLw"

// Config returns a test configuration uploading to dir.
func Config(dir string) *core.Config {
	return &core.Config{
		AppName:                   "Edu-Platform",
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		SecretKey:                 "test-secret",
		RefreshSecretKey:          "test-refresh-secret",
		FrontendBaseURL:           "http://localhost:5173",
		DefaultFromEmail:          mail.Address{Name: "Edu-Platform", Address: "noreply@localhost"},
		AdminEmail:                mail.Address{Address: "admin@localhost"},
		PasswordResetTimeoutDelta: time.Hour,
		Server: core.ServerConfig{
			Host:                      "localhost",
			Port:                      5000,
			DisableReqLogs:            true,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			ShutdownTimeout:           time.Second,
		},
		Media: core.MediaConfig{
			Backend:      "local",
			UploadDir:    dir,
			PublicPrefix: "/uploads",
		},
		Scheduler: core.SchedulerConfig{Disabled: true},
	}
}

// Logger returns a silent logger.
func Logger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zap.NewNop(), conf)
	logger.Enable(false)
	return logger
}

// Validator returns a validator & its translator with every custom validation registered.
func Validator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, role, status string,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		Status:    status,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if err := usr.SetPassword(Password); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse stores an approved & published course with a lecture per title.
func CreateCourse(t *testing.T, repo course.Repository, tutorID, title string, lectures ...string) course.Course {
	t.Helper()
	now := time.Now().UTC()
	c := course.Course{
		Title:       title,
		Description: title + " description",
		Category:    course.DefaultCategory,
		Level:       course.LevelBeginner,
		Published:   true,
		Status:      course.StatusApproved,
		Curriculum:  []string{},
		TutorID:     tutorID,
		Lectures:    []course.Lecture{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for i, lt := range lectures {
		c.Lectures = append(c.Lectures, course.Lecture{
			ID:            uuid.New().String(),
			Title:         lt,
			VideoURL:      "/uploads/videos/" + lt + ".mp4",
			Duration:      10,
			Order:         i + 1,
			NoteFiles:     []string{},
			ResourceFiles: []string{},
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	c.RecomputeTotalDuration()
	c, err := repo.CreateCourse(context.Background(), c)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}
