package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	echoapi "github.com/somahq/soma/apps/api/echo"
	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/assessment"
	"github.com/somahq/soma/core/course"
	"github.com/somahq/soma/core/library"
	"github.com/somahq/soma/core/notification"
	"github.com/somahq/soma/core/user"
	emailsvc "github.com/somahq/soma/services/email"
	logsvc "github.com/somahq/soma/services/logger"
	"github.com/somahq/soma/storage/blob"
	"github.com/somahq/soma/storage/database"
	sqlxrepos "github.com/somahq/soma/storage/database/sqlx"
)

func main() {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.LoadConfig(core.Getwd())
	logger := logsvc.NewRollbarLogger(stdLogger, conf)

	if err := run(conf, logger); err != nil {
		logger.Fatal("API server failed", err)
	}
}

func run(conf *core.Config, logger core.Logger) error {
	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		return errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer db.Close()

	if err := database.Migrate(db, conf); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	sdb := sqlx.NewDb(db, "postgres")

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	blobs, err := openBlobStorage(conf)
	if err != nil {
		return errors.Wrap(err, "opening blob storage")
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(sdb), mailSvc)
	crsSvc := course.NewService(sqlxrepos.NewCourseRepository(sdb))
	asmSvc := assessment.NewService(sqlxrepos.NewAssessmentRepository(sdb))
	docSvc := library.NewService(sqlxrepos.NewDocumentRepository(sdb), nil, logger)
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(sdb))

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := echoapi.NewServer(
		conf.Server.Address(),
		shutdown,
		&echoapi.Deps{
			Logger:        logger,
			UserSvc:       usrSvc,
			CourseSvc:     crsSvc,
			AssessmentSvc: asmSvc,
			LibrarySvc:    docSvc,
			NotifSvc:      notifSvc,
			Blobs:         blobs,
		},
	)

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("API server listening on " + conf.Server.Address())
		serverErrs <- app.Start()
	}()

	select {
	case err := <-serverErrs:
		return errors.Wrap(err, "server error")
	case sig := <-shutdown:
		logger.Info("shutting down", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			return errors.Wrap(err, "stopping server")
		}
	}
	return nil
}

// openBlobStorage picks Backblaze when a bucket is configured; local disk otherwise.
func openBlobStorage(conf *core.Config) (blob.Storage, error) {
	if conf.Storage.B2Bucket != "" {
		return blob.NewB2Storage(context.Background(), conf.Storage.B2AccountID, conf.Storage.B2AppKey, conf.Storage.B2Bucket)
	}
	return blob.NewLocalStorage(conf.Storage.Dir)
}
