// Package webserver hosts the local admin HTTP API.
package webserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/talkincode/medsbot/config"
	"go.uber.org/zap"
)

const (
	ApiPrefix       = "/api/v1"
	ApiKeyHeader    = "X-API-Key"
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	cfg  config.WebConfig
	root *echo.Echo
	api  *echo.Group
}

// NewServer builds the echo instance. When api keys are configured every
// /api/v1 request must carry one of them in the X-API-Key header.
func NewServer(cfg config.WebConfig) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			zap.L().Debug("http request", fields...)
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group(ApiPrefix)
	if len(cfg.ApiKeys) > 0 {
		keys := make([][]byte, 0, len(cfg.ApiKeys))
		for _, k := range cfg.ApiKeys {
			keys = append(keys, []byte(k))
		}
		api.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:" + ApiKeyHeader,
			Validator: func(key string, c echo.Context) (bool, error) {
				for _, k := range keys {
					if subtle.ConstantTimeCompare([]byte(key), k) == 1 {
						return true, nil
					}
				}
				return false, nil
			},
		}))
	} else {
		zap.L().Warn("admin api has no api keys configured, requests are not authenticated")
	}
	return &Server{cfg: cfg, root: e, api: api}
}

// Echo exposes the underlying instance, used by tests.
func (s *Server) Echo() *echo.Echo {
	return s.root
}

// Use adds middleware to the api group. Call it before registering routes.
func (s *Server) Use(m ...echo.MiddlewareFunc) {
	s.api.Use(m...)
}

func (s *Server) ApiGET(path string, h echo.HandlerFunc) {
	s.api.GET(path, h)
}

func (s *Server) ApiPOST(path string, h echo.HandlerFunc) {
	s.api.POST(path, h)
}

func (s *Server) ApiPUT(path string, h echo.HandlerFunc) {
	s.api.PUT(path, h)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("admin api listening", zap.String("addr", addr))
		errCh <- s.root.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.root.Shutdown(shutdownCtx); err != nil {
		return err
	}
	zap.L().Info("admin api stopped")
	return nil
}
