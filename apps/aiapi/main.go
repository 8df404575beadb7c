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
	"github.com/somahq/soma/core/chat"
	"github.com/somahq/soma/core/library"
	"github.com/somahq/soma/core/notification"
	cachesvc "github.com/somahq/soma/services/cache"
	geminisvc "github.com/somahq/soma/services/gemini"
	logsvc "github.com/somahq/soma/services/logger"
	"github.com/somahq/soma/storage/blob"
	"github.com/somahq/soma/storage/database"
	sqlxrepos "github.com/somahq/soma/storage/database/sqlx"
	"github.com/somahq/soma/storage/vector"
)

func main() {
	stdLogger := log.New(os.Stdout, "AI : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.LoadConfig(core.Getwd())
	logger := logsvc.NewRollbarLogger(stdLogger, conf)

	if err := run(conf, logger); err != nil {
		logger.Fatal("AI server failed", err)
	}
}

func run(conf *core.Config, logger core.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// set up DB; the API server owns migrations, this service expects
	// the schema (incl. pgvector) to be in place already.
	db, err := database.Open(conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer db.Close()
	sdb := sqlx.NewDb(db, "postgres")

	pool, err := vector.Open(ctx, database.URL(conf))
	if err != nil {
		return errors.Wrap(err, "opening vector pool")
	}
	defer pool.Close()

	// set up services
	client, err := geminisvc.NewClient(ctx, conf, logger)
	if err != nil {
		return errors.Wrap(err, "creating gemini client")
	}
	vectors := vector.NewStore(pool, client, logger)

	var cache chat.Cache
	if c := cachesvc.NewClient(conf); c.Enabled() {
		cache = c
	} else {
		logger.Warn("response cache disabled, no Upstash URL configured")
	}
	chatSvc := chat.NewService(client, vectors, cache, logger, conf)

	blobs, err := openBlobStorage(conf)
	if err != nil {
		return errors.Wrap(err, "opening blob storage")
	}

	docSvc := library.NewService(sqlxrepos.NewDocumentRepository(sdb), client, logger)
	notifSvc := notification.NewService(sqlxrepos.NewNotificationRepository(sdb))

	// background document indexer
	indexer := geminisvc.NewIndexer(docSvc, notifSvc, client, blobs, vectors, logger, conf.AI.IndexPollInterval)
	go indexer.Run(ctx)

	// start API server
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	app := echoapi.NewServer(
		conf.Server.Address(),
		shutdown,
		&echoapi.Deps{
			Logger:  logger,
			ChatSvc: chatSvc,
		},
	)

	serverErrs := make(chan error, 1)
	go func() {
		logger.Info("AI server listening on " + conf.Server.Address())
		serverErrs <- app.Start()
	}()

	select {
	case err := <-serverErrs:
		return errors.Wrap(err, "server error")
	case sig := <-shutdown:
		logger.Info("shutting down", sig)
		cancel() // stops the indexer

		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := app.Stop(sctx); err != nil {
			return errors.Wrap(err, "stopping server")
		}
	}
	return nil
}

func openBlobStorage(conf *core.Config) (blob.Storage, error) {
	if conf.Storage.B2Bucket != "" {
		return blob.NewB2Storage(context.Background(), conf.Storage.B2AccountID, conf.Storage.B2AppKey, conf.Storage.B2Bucket)
	}
	return blob.NewLocalStorage(conf.Storage.Dir)
}
