// Package api the runjs http service
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shiroyk/runjs"
	"github.com/shiroyk/runjs/cache"
	"github.com/shiroyk/runjs/errs"
	"golang.org/x/exp/slog"
	"golang.org/x/net/http2"
)

const (
	// DefaultTimeout the default timeout
	DefaultTimeout = time.Minute
	// DefaultAddress the api default address
	DefaultAddress = "localhost:8080"
)

// Options the api server configuration
type Options struct {
	Logger *slog.Logger `yaml:"-"`
	// Cache is handed to every session, nil disables result caching.
	Cache   cache.Cache   `yaml:"-"`
	Token   string        `yaml:"token"`
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
	// Backend is used when a request names none.
	Backend      string        `yaml:"backend"`
	CacheTimeout time.Duration `yaml:"-"`
}

// Server the api service
func Server(opt Options, registry *runjs.Registry) *echo.Echo {
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	e := echo.New()
	e.HTTPErrorHandler = errorHandler(opt.Logger)
	e.HideBanner = true
	e.HidePort = true

	m := newMetrics()
	e.Use(loggerMiddleware(opt), authMiddleware(opt))
	e.Any("/ping", ping)
	e.Any("", ping)
	e.GET("/metrics", echo.WrapHandler(m.handler()))
	e.POST("/v1/run", (&runner{opt: opt, registry: registry, metrics: m}).run)
	return e
}

// Start serves the api over h2c until the server is shut down.
func Start(e *echo.Echo, opt Options) error {
	err := e.StartH2CServer(opt.Address, &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          opt.Timeout,
	})
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// errorBody the error response
type errorBody struct {
	Msg   string `json:"msg"`
	Kind  string `json:"kind,omitempty"`
	Stack string `json:"stack,omitempty"`
}

// statusOf maps an error to the response status.
func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	kind, _ := errs.KindOf(err)
	switch kind {
	case errs.ArgumentError, errs.ConversionError:
		return http.StatusBadRequest
	case errs.FunctionNotFound:
		return http.StatusNotFound
	case errs.RuntimeFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := statusOf(err)
		body := errorBody{Msg: err.Error()}
		var (
			he *echo.HTTPError
			e  *errs.Error
		)
		switch {
		case errors.As(err, &he):
			if msg, ok := he.Message.(string); ok {
				body.Msg = msg
			}
		case errors.As(err, &e):
			body.Kind, body.Stack = string(e.Kind), e.Stack
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", "uri", c.Request().RequestURI, "error", err)
		}

		if err = c.JSON(code, body); err != nil {
			logger.Error("write response failed", "error", err)
		}
	}
}

func ping(ctx echo.Context) error {
	return ctx.NoContent(http.StatusOK)
}
