package publicapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/100monkeys-ai/monkey-troop/pkg/publicapi/middleware"
	"github.com/100monkeys-ai/monkey-troop/pkg/system"
)

type Config struct {
	Host string
	Port int

	// These are TCP connection deadlines and not HTTP timeouts. They don't
	// control the time it takes for our handlers to complete. Deadlines
	// operate on the connection, so our server will fail to return a result
	// only after the handlers try to access connection properties
	ReadHeaderTimeout time.Duration // the amount of time allowed to read request headers
	ReadTimeout       time.Duration // the maximum duration for reading the entire request, including the body
	WriteTimeout      time.Duration // the maximum duration before timing out writes of the response

	// ThrottleLimitPerSecond is the coarse per-IP request ceiling applied in
	// front of the tiered rate limits.
	ThrottleLimitPerSecond float64
}

func DefaultConfig() Config {
	return Config{
		Host:                   "0.0.0.0",
		Port:                   1317,
		ReadHeaderTimeout:      10 * time.Second,
		ReadTimeout:            20 * time.Second,
		WriteTimeout:           20 * time.Second,
		ThrottleLimitPerSecond: 1000, //nolint:gomnd
	}
}

// Server wraps an echo router with the middleware stack every coordinator
// endpoint shares: request IDs, response timing, structured error responses,
// panic recovery and a coarse per-IP throttle.
type Server struct {
	Router *echo.Echo
	config Config
}

func NewServer(config Config) *Server {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	router.HTTPErrorHandler = middleware.CustomHTTPErrorHandler

	router.Use(echomiddleware.RequestID())
	router.Use(middleware.ResponseTime())
	router.Use(echomiddleware.Recover())
	router.Use(echo.WrapMiddleware(func(handler http.Handler) http.Handler {
		return tollbooth.LimitHandler(
			tollbooth.NewLimiter(
				config.ThrottleLimitPerSecond,
				&limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour}),
			handler)
	}))

	router.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Server{
		Router: router,
		config: config,
	}
}

// GetURI returns the HTTP URI that the server is listening on.
func (s *Server) GetURI() string {
	return fmt.Sprintf("http://%s:%d", s.config.Host, s.config.Port)
}

// ListenAndServe listens for and serves HTTP requests against the server.
func (s *Server) ListenAndServe(ctx context.Context, cm *system.CleanupManager) error {
	srv := http.Server{
		Handler:           s.Router,
		Addr:              fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	log.Ctx(ctx).Debug().Msgf("API server listening on %s...", srv.Addr)

	// Cleanup resources when system is done:
	cm.RegisterCallback(func() error {
		return srv.Shutdown(ctx)
	})

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		log.Ctx(ctx).Debug().Msgf("API server closed on %s.", srv.Addr)
		return nil // expected error if the server is shut down
	}
	return err
}
