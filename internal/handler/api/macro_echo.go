package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"MacroPull/internal/domain/models"
	"MacroPull/internal/domain/service"
	"MacroPull/internal/services/stream"
	xhttp "MacroPull/pkg/http"
	xlogger "MacroPull/pkg/logger"
)

// Edge caches may serve a snapshot for five minutes and keep serving it for
// an hour while revalidating.
const macroCacheControl = "public, s-maxage=300, stale-while-revalidate=3600"

// HealthCheck reports the health of one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// MacroEchoHandler serves snapshots, single indicators, the registry listing
// and the snapshot stream.
type MacroEchoHandler struct {
	logger   *xlogger.Logger
	provider service.SnapshotProvider
	registry service.Registry
	hub      *stream.Hub
	upgrader websocket.Upgrader
	wait     time.Duration
	checks   []HealthCheck
}

type MacroHandlerOption func(*MacroEchoHandler)

// WithStream enables /ws/macro backed by hub.
func WithStream(hub *stream.Hub, origins []string) MacroHandlerOption {
	return func(h *MacroEchoHandler) {
		h.hub = hub
		h.upgrader = websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  4096,
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      originChecker(origins),
		}
	}
}

// WithSnapshotWait bounds how long a request waits for the first snapshot.
func WithSnapshotWait(d time.Duration) MacroHandlerOption {
	return func(h *MacroEchoHandler) { h.wait = d }
}

func WithHealthChecks(checks ...HealthCheck) MacroHandlerOption {
	return func(h *MacroEchoHandler) { h.checks = append(h.checks, checks...) }
}

func NewMacroEchoHandler(logger *xlogger.Logger, provider service.SnapshotProvider, registry service.Registry, opts ...MacroHandlerOption) *MacroEchoHandler {
	h := &MacroEchoHandler{logger: logger, provider: provider, registry: registry}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MacroEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/macro", h.Snapshot)
	g.GET("/macro/:indicator", h.Indicator)
	g.GET("/indicators", h.Indicators)

	e.GET("/healthz", h.Health)
	if h.hub != nil {
		e.GET("/ws/macro", h.Stream)
	}
}

func (h *MacroEchoHandler) Snapshot(c echo.Context) error {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	snap := h.provider.GetMacroSnapshot(ctx)
	c.Response().Header().Set(echo.HeaderCacheControl, macroCacheControl)
	return xhttp.SuccessResponse(c, snap)
}

func (h *MacroEchoHandler) Indicator(c echo.Context) error {
	req := &models.IndicatorRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	v, ok := h.provider.Lookup(ctx, req.Name)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown indicator %q", req.Name).WithParam("indicator", req.Name))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, macroCacheControl)
	return xhttp.SuccessResponse(c, v)
}

func (h *MacroEchoHandler) Indicators(c echo.Context) error {
	specs := h.registry.Specs()
	out := make([]models.IndicatorInfo, 0, len(specs))
	for _, s := range specs {
		out = append(out, models.Describe(s))
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *MacroEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, chk := range h.checks {
		if err := chk.Check(ctx); err != nil {
			h.logger.Warn("health check failed", xlogger.String("dependency", chk.Name), xlogger.Error(err))
			deps[chk.Name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[chk.Name] = "ok"
	}
	return xhttp.DataResponse(c, status, deps)
}

func (h *MacroEchoHandler) Stream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	stream.NewClient(h.hub, conn).Serve()
	return nil
}

func (h *MacroEchoHandler) requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	if h.wait <= 0 {
		return context.WithCancel(c.Request().Context())
	}
	return context.WithTimeout(c.Request().Context(), h.wait)
}

func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(origins) == 0 {
			return true
		}
		for _, o := range origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}
