package host

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xzero/flowd/internal/bytecode"
	"github.com/xzero/flowd/internal/native"
	"github.com/xzero/flowd/internal/vm"
)

// stdLogger adapts the standard library's log package to the Logger
// interface context.go's RequestContext carries, matching the teacher
// CLI's own choice of "log" over a structured-logging library.
type stdLogger struct{ *log.Logger }

func NewStdLogger() Logger {
	return stdLogger{log.New(os.Stderr, "", log.LstdFlags)}
}

func (l stdLogger) Infof(format string, args ...any)  { l.Printf("INFO "+format, args...) }
func (l stdLogger) Errorf(format string, args ...any) { l.Printf("ERROR "+format, args...) }

// Server drives a compiled Program from incoming HTTP requests (spec.md
// section 2's expansion: "an HTTP connection driving the VM once per
// request"). Serve opens one listener (with SO_REUSEPORT set when
// configured, see listener_unix.go) and blocks until the context passed
// to Serve is cancelled or the listener fails.
type Server struct {
	cfg     Config
	program *bytecode.Program
	natives *native.Registry
	fallback http.Handler
	log     Logger

	servers []*http.Server
}

// NewServer builds a Server ready to Serve. fallback is invoked whenever
// the selected handler's Runner returns a false verdict without staging
// a response (spec.md section 6: "false ⇒ fall through to a default
// http.Handler").
func NewServer(cfg Config, program *bytecode.Program, natives *native.Registry, fallback http.Handler, logger Logger) *Server {
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	if logger == nil {
		logger = NewStdLogger()
	}
	return &Server{cfg: cfg, program: program, natives: natives, fallback: fallback, log: logger}
}

func (s *Server) routeFor(r *http.Request) string {
	if _, ok := s.program.HandlerByName(r.URL.Path); ok {
		return r.URL.Path
	}
	return s.cfg.Listen.DefaultRoute
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Runtime.RequestTimeout.Duration)
	defer cancel()
	r = r.WithContext(ctx)

	rc := NewRequestContext(r, s.log)

	handlerName := s.routeFor(r)
	runner, ok := vm.ForHandler(s.program, handlerName, s.natives, rc)
	if !ok {
		s.fallback.ServeHTTP(w, r)
		return
	}

	verdict, err := runner.Run()
	if err != nil {
		s.log.Errorf("request %s: handler %q: %v", rc.ID, handlerName, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !verdict || !rc.Handled() {
		s.fallback.ServeHTTP(w, r)
		return
	}

	w.WriteHeader(rc.StatusCode)
	fmt.Fprint(w, rc.Body)
}

// Serve opens the configured listener(s) and blocks until ctx is
// cancelled, at which point it drains in-flight requests and returns.
// Grounded on the teacher pack's mtail Server.Serve/Close pair, replacing
// its manual signal-channel bookkeeping with errgroup so every listener's
// shutdown is awaited uniformly.
func (s *Server) Serve(ctx context.Context) error {
	listeners, err := s.listen()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, ln := range listeners {
		srv := &http.Server{Handler: s}
		s.servers = append(s.servers, srv)
		i, ln := i, ln
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("host: listener %d: %w", i, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	for _, srv := range s.servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// listen opens a single listener on Listen.Address, with SO_REUSEPORT
// set on it when Listen.ReusePort is set and the platform supports it.
// It does not open additional sibling listeners.
func (s *Server) listen() ([]net.Listener, error) {
	ln, err := newListener(s.cfg.Listen.Address, s.cfg.Listen.ReusePort)
	if err != nil {
		return nil, fmt.Errorf("host: listen on %s: %w", s.cfg.Listen.Address, err)
	}
	return []net.Listener{ln}, nil
}
