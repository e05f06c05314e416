package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/slmcal/pkg/calibration"
	"github.com/charlie0129/slmcal/pkg/config"
	"github.com/charlie0129/slmcal/pkg/events"
	"github.com/charlie0129/slmcal/pkg/instrument"
	"github.com/charlie0129/slmcal/pkg/operator"
	"github.com/charlie0129/slmcal/pkg/procedure"
)

// Server runs calibrations in the background and lets a remote operator
// answer their prompts over HTTP.
type Server struct {
	station *instrument.Station
	remote  *operator.Remote
	hub     *events.EventHub
	// Sleep replaces the pause between readings of new runners when set.
	Sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	base   context.Context
	cfg    *config.Calibration
	runner *procedure.Runner
	cancel context.CancelFunc
	done   chan struct{}
}

// NewServer returns an idle server. Runs are cancelled when ctx is done.
func NewServer(ctx context.Context, cfg *config.Calibration, st *instrument.Station) *Server {
	hub := events.NewEventHub()
	remote := operator.NewRemote(hub)
	return &Server{
		station: st,
		remote:  remote,
		hub:     hub,
		base:    ctx,
		cfg:     cfg,
		runner:  procedure.NewRunner(cfg, st, remote, hub),
	}
}

func (s *Server) current() (*procedure.Runner, *config.Calibration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner, s.cfg
}

func (s *Server) busy() bool {
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Start plans ids (all procedures of the standard when empty) and runs
// them on a new goroutine.
func (s *Server) Start(ids []calibration.Procedure) ([]calibration.Procedure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy() {
		return nil, procedure.ErrRunInProgress
	}
	plan, err := s.runner.Plan(ids)
	if err != nil {
		return nil, err
	}
	if s.Sleep != nil {
		s.runner.Sleep = s.Sleep
	}

	ctx, cancel := context.WithCancel(s.base)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	r := s.runner
	go func() {
		defer close(done)
		defer cancel()
		if err := r.Run(ctx, plan); err != nil {
			logrus.WithError(err).Warn("calibration run ended with error")
		}
	}()
	return plan, nil
}

// Running reports whether a run started by Start has not finished yet.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy()
}

// Cancel stops the current run. It reports whether a run was going.
func (s *Server) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.busy() {
		return false
	}
	s.cancel()
	return true
}

// Wait blocks until the current run, if any, has finished.
func (s *Server) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Reload swaps the calibration configuration. The results of the last run
// are dropped with the old runner.
func (s *Server) Reload(cfg *config.Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy() {
		return procedure.ErrRunInProgress
	}
	s.cfg = cfg
	s.runner = procedure.NewRunner(cfg, s.station, s.remote, s.hub)
	return nil
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/version", getVersion)
	router.GET("/config", s.getConfig)
	router.GET("/procedures", s.getProcedures)
	router.GET("/status", s.getStatus)
	router.POST("/run", s.postRun)
	router.POST("/cancel", s.postCancel)
	router.GET("/prompt", s.getPrompt)
	router.PUT("/prompt", s.putPrompt)
	router.GET("/notices", s.getNotices)
	router.GET("/results", s.getResults)
	router.GET("/events", s.getEvents)

	return router
}

// Options configures Run.
type Options struct {
	Socket       string
	AllowNonRoot bool
	// CalibrationPath is re-read on SIGHUP.
	CalibrationPath string
}

// Run serves the API on a unix socket until SIGINT or SIGTERM. A run in
// progress is cancelled and the bench reset before returning.
func Run(cfg *config.Calibration, st *instrument.Station, opts Options) error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	s := NewServer(ctx, cfg, st)
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Receive SIGHUP to reload the calibration file
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if opts.CalibrationPath == "" {
				continue
			}
			c, err := config.LoadCalibration(opts.CalibrationPath)
			if err != nil {
				logrus.Errorf("failed to reload calibration: %v", err)
				continue
			}
			if err := s.Reload(c); err != nil {
				logrus.Errorf("failed to reload calibration: %v", err)
				continue
			}
			logrus.WithFields(c.LogrusFields()).Info("calibration reloaded")
		}
	}()

	if err := os.Remove(opts.Socket); err != nil && !os.IsNotExist(err) {
		return err
	}
	l, err := net.Listen("unix", opts.Socket)
	if err != nil {
		return err
	}
	if opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.Socket)
		if err := os.Chmod(opts.Socket, 0777); err != nil {
			return err
		}
	}

	errc := make(chan error, 1)
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
	case err := <-errc:
		logrus.Errorf("http server failed: %v", err)
	}

	if s.Cancel() {
		logrus.Info("cancelling calibration run")
	}
	s.Wait()
	stop()

	logrus.Info("shutting down http server")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(sctx); err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("exiting")
	return nil
}
