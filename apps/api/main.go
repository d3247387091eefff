package main

import (
	"context"
	"expvar"
	"fmt"
	"io"
	"log"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/eduplatform/backend/apps/api/echo"
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
	logsvc "github.com/eduplatform/backend/services/logger"
	mediasvc "github.com/eduplatform/backend/services/media"
	schedulersvc "github.com/eduplatform/backend/services/scheduler"
	"github.com/eduplatform/backend/storage/database"
	inmemdb "github.com/eduplatform/backend/storage/database/inmem"
	sqlxrepos "github.com/eduplatform/backend/storage/database/sqlx"
)

type repositories struct {
	tx         core.Transactor
	user       user.Repository
	course     course.Repository
	enrollment enrollment.Repository
	review     review.Repository
	close      func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up logger
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("creating zap logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl, conf)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Sync()

	// set up DB
	repos, err := setUpRepos(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = repos.close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up locker: Redis when configured so that every instance shares the locks
	var locker core.Locker = locksvc.NewMemoryLocker()
	if conf.Redis.Addr != "" {
		rdb, err := locksvc.NewRedisClient(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
		}
		defer func() { _ = rdb.Close() }()
		locker = locksvc.NewRedisLocker(rdb, logger)
	}

	// set up media
	storage, err := mediasvc.NewStorage(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up media storage: %v", err), err)
	}
	if c, ok := storage.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	uploader := mediasvc.NewUploader(storage, mediasvc.FFProbe{Path: conf.Media.FFProbePath})

	renderer, err := certsvc.NewRenderer()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up certificate renderer: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(repos.user, mailSvc, conf)
	courseSvc := course.NewService(repos.course, usrSvc)
	enrSvc := enrollment.NewService(repos.enrollment, courseSvc, usrSvc, repos.tx, locker, mailSvc, logger)
	reviewSvc := review.NewService(repos.review, courseSvc, usrSvc)
	certSvc := certificate.NewService(enrSvc, usrSvc, renderer, conf)
	dashboardSvc := dashboard.NewService(courseSvc, enrSvc, usrSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, conf, logger)

	user.LoadCommonPasswords(appfs.FS, logger)

	// =========================================================================
	// Start Scheduler

	var scheduler *schedulersvc.Scheduler
	if !conf.Scheduler.Disabled {
		scheduler = schedulersvc.New(courseSvc, repos.enrollment, logger)
		if err = scheduler.Start(conf); err != nil {
			logger.Fatal(fmt.Sprintf("starting scheduler: %v", err), err)
		}
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			Uploader:       uploader,
			UserSvc:        usrSvc,
			CourseSvc:      courseSvc,
			EnrollmentSvc:  enrSvc,
			ReviewSvc:      reviewSvc,
			CertificateSvc: certSvc,
			DashboardSvc:   dashboardSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if scheduler != nil {
			scheduler.Stop(ctx)
		}

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

// setUpRepos opens the configured database. The "memory" engine keeps everything in process.
func setUpRepos(conf *core.Config) (repositories, error) {
	if conf.Database.Engine == "memory" {
		db := inmemdb.Open()
		return repositories{
			tx:         inmemdb.Transactor{},
			user:       inmemdb.NewUserRepository(db),
			course:     inmemdb.NewCourseRepository(db),
			enrollment: inmemdb.NewEnrollmentRepository(db),
			review:     inmemdb.NewReviewRepository(db),
			close:      func() error { return nil },
		}, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return repositories{}, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return repositories{}, err
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return repositories{}, err
	}
	return repositories{
		tx:         sqlxrepos.NewTransactor(db),
		user:       sqlxrepos.NewUserRepository(db),
		course:     sqlxrepos.NewCourseRepository(db),
		enrollment: sqlxrepos.NewEnrollmentRepository(db),
		review:     sqlxrepos.NewReviewRepository(db),
		close:      db.Close,
	}, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
