package main

import (
	"fmt"
	"log"
	"os"

	"github.com/eduplatform/backend/core"
	"github.com/eduplatform/backend/core/course"
	"github.com/eduplatform/backend/core/user"
	emailsvc "github.com/eduplatform/backend/services/email"
	logsvc "github.com/eduplatform/backend/services/logger"
	schedulersvc "github.com/eduplatform/backend/services/scheduler"
	"github.com/eduplatform/backend/storage/database"
	sqlxrepos "github.com/eduplatform/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		log.Fatalf("creating zap logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	logger.Enable(false)

	// set up DB
	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), conf)
	courseSvc := course.NewService(sqlxrepos.NewCourseRepository(db), usrSvc)

	// start CLI
	cli := commandLine{
		db:         db.DB,
		usrRepo:    usrRepo,
		reconciler: schedulersvc.New(courseSvc, sqlxrepos.NewEnrollmentRepository(db), logger),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Sync()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
