package host

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/xzero/flowd/internal/value"
)

// RequestContext is the opaque per-request value a Runner carries as its
// UserContext (native.RequestRunner / spec.md section 5: "the runner
// carries an opaque pointer the host may use to reach request-scoped
// state"). The HTTP natives in callbacks.go type-assert
// native.Params.Runner.UserContext() back to *RequestContext to reach
// the live request.
type RequestContext struct {
	ID uuid.UUID

	Request *http.Request

	// Response fields are staged here rather than written straight to
	// the http.ResponseWriter, since a handler may run several
	// HANDLER natives (e.g. via match arms) before one of them
	// short-circuits the verdict to true — only the winning native's
	// staged response should ever reach the wire.
	StatusCode int
	Body       string
	handled    bool

	Log Logger
}

// NewRequestContext builds a fresh, unhandled RequestContext for r,
// tagged with a random request id for cross-callback log correlation.
func NewRequestContext(r *http.Request, log Logger) *RequestContext {
	return &RequestContext{
		ID:         uuid.New(),
		Request:    r,
		StatusCode: http.StatusOK,
		Log:        log,
	}
}

// UserContext returns c itself, so when a *RequestContext is passed as
// Params.Runner (as the tests do), a native's UserContext() call yields
// the same *RequestContext a *vm.Runner would hand back.
func (c *RequestContext) UserContext() any { return c }

// NewString exists only so *RequestContext itself satisfies
// native.RequestRunner when tests exercise a callback directly against
// it as Params.Runner. Production requests never take this path: the
// server always wraps a *RequestContext in a *vm.Runner, and *vm.Runner
// is what a compiled handler's natives actually see as Params.Runner —
// its own NewString goes through the request's arena.
func (c *RequestContext) NewString(s string) *value.StringVal { return value.NewString(s) }

// MarkHandled records that a native has staged a response for this
// request, so the server knows not to fall through to the default
// http.Handler once the Runner returns.
func (c *RequestContext) MarkHandled(status int, body string) {
	c.StatusCode = status
	c.Body = body
	c.handled = true
}

func (c *RequestContext) Handled() bool { return c.handled }

// Logger is the minimal leveled-logging surface callbacks.go's
// log.info native writes through; the concrete implementation lives in
// server.go so the host's own startup/shutdown messages and per-request
// Flow-triggered messages share one sink.
type Logger interface {
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}
