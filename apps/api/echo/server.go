package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/somahq/soma/core"
	"github.com/somahq/soma/core/assessment"
	"github.com/somahq/soma/core/chat"
	"github.com/somahq/soma/core/course"
	"github.com/somahq/soma/core/library"
	"github.com/somahq/soma/core/notification"
	"github.com/somahq/soma/core/user"
	"github.com/somahq/soma/storage/blob"
)

type (
	// Deps carries the services exposed over HTTP. A nil service skips the
	// registration of its API; the platform and AI binaries share this
	// package and only differ in what they wire.
	Deps struct {
		Logger core.Logger

		UserSvc       *user.Service
		CourseSvc     *course.Service
		AssessmentSvc *assessment.Service
		LibrarySvc    *library.Service
		NotifSvc      *notification.Service
		ChatSvc       *chat.Service

		Blobs blob.Storage
	}

	Options struct {
		Address        string
		DisableReqLogs bool
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		deps *Deps
		app  *echo.Echo

		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Server = (*server)(nil)

// NewServer sets up an API server. shutdown, when non-nil, receives a
// SIGTERM whenever an unrecoverable error bubbles up through the error
// handler so main can stop gracefully.
func NewServer(addr string, shutdown chan<- os.Signal, deps *Deps) Server {
	s := &server{
		opts: &Options{Address: addr},
		deps: deps,
		app:  echo.New(),
	}
	s.validate, s.translator = core.NewValidator()
	user.RegisterValidators(s.validate, s.translator)

	signalShutdown := func() {
		if shutdown != nil {
			shutdown <- syscall.SIGTERM
		}
	}
	s.setup(signalShutdown)
	return s
}

func (s *server) setup(signalShutdown func()) {
	appJWTConfig.SigningKey = []byte(core.Conf.SecretKey)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs && !core.Conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(core.Conf.Debug || core.Conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.translator, signalShutdown)
	s.app.Debug = core.Conf.Debug

	s.app.GET("/", home)
	s.app.GET("/healthz", healthz)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(appJWTConfig)

	if s.deps.UserSvc != nil {
		registerUserAPI(v1, jwt, s.deps.UserSvc, s.validate, s.translator)
	}
	if s.deps.CourseSvc != nil {
		registerCourseAPI(v1, jwt, s.deps.CourseSvc, s.deps.NotifSvc, s.validate)
	}
	if s.deps.AssessmentSvc != nil {
		registerAssessmentAPI(v1, jwt, s.deps.AssessmentSvc, s.deps.CourseSvc, s.deps.NotifSvc, s.validate)
	}
	if s.deps.LibrarySvc != nil {
		registerLibraryAPI(v1, jwt, s.deps.LibrarySvc, s.deps.Blobs, s.validate)
	}
	if s.deps.NotifSvc != nil {
		registerNotificationAPI(v1, jwt, s.deps.NotifSvc)
	}
	if s.deps.ChatSvc != nil {
		registerChatAPI(v1, jwt, s.deps.ChatSvc, s.validate)
	}
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Soma API!")
}

func healthz(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
