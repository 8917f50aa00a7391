package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/drive-control/dcc/internal/adapter"
	"github.com/drive-control/dcc/internal/audit"
	"github.com/drive-control/dcc/internal/config"
	"github.com/drive-control/dcc/internal/metrics"
	"github.com/drive-control/dcc/internal/queue"
)

// Request headers consulted by the dispatcher.
const (
	APIKeyHeader       = "X-Api-Key"
	ForwardedForHeader = "X-Forwarded-For"
	CorrelationHeader  = "X-Correlation-Id"
)

// Pan/tilt travel limits in degrees.
const (
	panLimitDeg  = 90.0
	tiltLimitDeg = 45.0
)

type routeKey struct {
	method string
	path   string
}

type handlerFunc func(ctx context.Context, payload map[string]any) (*Response, error)

// Server dispatches control-plane requests. It owns no transport: Dispatch
// takes a method, path, decoded payload and headers, and returns a status
// code plus body. ServeHTTP in server.go adapts net/http onto it.
type Server struct {
	store      *config.Store
	ingress    LimiterPort
	execution  LimiterPort
	queue      CommandQueuePort
	actuator   adapter.Actuator
	servo      adapter.Servo
	ultrasonic adapter.UltrasonicSource
	line       adapter.LineSource
	encoders   adapter.EncoderSource

	audit   AuditPort
	logger  *slog.Logger
	metrics *metrics.Metrics

	routes map[routeKey]handlerFunc

	httpServer     *http.Server
	metricsHandler http.Handler
}

// NewServer creates a dispatcher over the given collaborators. Optional
// collaborators (audit, logging, metrics) are attached with setters.
func NewServer(store *config.Store, ingress, execution LimiterPort, q CommandQueuePort,
	actuator adapter.Actuator, servo adapter.Servo,
	ultrasonic adapter.UltrasonicSource, line adapter.LineSource) *Server {
	s := &Server{
		store:      store,
		ingress:    ingress,
		execution:  execution,
		queue:      q,
		actuator:   actuator,
		servo:      servo,
		ultrasonic: ultrasonic,
		line:       line,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.routes = map[routeKey]handlerFunc{
		{http.MethodPost, "/drive/differential"}:   s.handleDrive,
		{http.MethodPost, "/drive/stop"}:           s.handleStop,
		{http.MethodPost, "/drive/brake"}:          s.handleBrake,
		{http.MethodPost, "/drive/emergency-stop"}: s.handleEmergencyStop,
		{http.MethodPost, "/drive/reset"}:          s.handleReset,
		{http.MethodPost, "/pan-tilt/position"}:    s.handlePanTilt,
		{http.MethodGet, "/telemetry/ultrasonic"}:  s.handleUltrasonic,
		{http.MethodGet, "/telemetry/line"}:        s.handleLine,
		{http.MethodGet, "/telemetry/encoders"}:    s.handleEncoders,
		{http.MethodGet, "/config"}:                s.handleGetConfig,
		{http.MethodPatch, "/config"}:              s.handlePatchConfig,
	}
	return s
}

// SetEncoderSource attaches a wheel encoder telemetry source.
func (s *Server) SetEncoderSource(encoders adapter.EncoderSource) {
	s.encoders = encoders
}

// SetAuditLogger attaches an audit trail for control actions.
func (s *Server) SetAuditLogger(a AuditPort) {
	s.audit = a
}

// SetLogger attaches a structured logger for request logging.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// SetMetrics attaches request and limiter instrumentation.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Dispatch authenticates the request, routes it to its handler and maps
// any handler error to a response. It never returns nil.
func (s *Server) Dispatch(ctx context.Context, method, path string, payload map[string]any, headers map[string]string) *Response {
	corrID := newCorrelationID()
	ctx = audit.WithCorrelationID(ctx, corrID)

	resp := s.dispatch(ctx, method, path, payload, headers)
	resp.CorrelationID = corrID

	s.metrics.ObserveRequest(method, path, resp.StatusCode)
	s.logger.Info("request dispatched",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"correlationId", corrID,
	)
	return resp
}

func (s *Server) dispatch(ctx context.Context, method, path string, payload map[string]any, headers map[string]string) *Response {
	if resp := s.authenticate(headers); resp != nil {
		return resp
	}
	handler, ok := s.routes[routeKey{method: strings.ToUpper(method), path: path}]
	if !ok {
		return errorDetail(http.StatusNotFound, "Not Found")
	}
	resp, err := handler(ctx, payload)
	if err != nil {
		return toErrorResponse(err)
	}
	return resp
}

// authenticate checks the API key and client network. A missing
// X-Forwarded-For header means a direct connection from localhost.
func (s *Server) authenticate(headers map[string]string) *Response {
	if !s.store.HasAPIKey(headerValue(headers, APIKeyHeader)) {
		return errorDetail(http.StatusUnauthorized, "Invalid API key")
	}

	clientIP := "127.0.0.1"
	if fwd := headerValue(headers, ForwardedForHeader); fwd != "" {
		clientIP, _, _ = strings.Cut(fwd, ",")
		clientIP = strings.TrimSpace(clientIP)
	}
	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return errorDetail(http.StatusBadRequest, "Invalid client IP")
	}
	if !s.store.Allows(addr) {
		return errorDetail(http.StatusForbidden, "Client network not permitted")
	}
	return nil
}

func (s *Server) handleDrive(ctx context.Context, payload map[string]any) (*Response, error) {
	left, err := speedField(payload, "left_speed")
	if err != nil {
		return nil, err
	}
	right, err := speedField(payload, "right_speed")
	if err != nil {
		return nil, err
	}
	var duration time.Duration
	if raw, ok := payload["duration_s"]; ok && raw != nil {
		secs, ok := numberValue(raw)
		if !ok || secs <= 0 {
			return nil, validationErrorf("duration_s must be a positive number")
		}
		duration = time.Duration(secs * float64(time.Second))
	}

	params := map[string]any{"left_speed": left, "right_speed": right, "duration_s": duration.Seconds()}
	start := time.Now()

	if !s.ingress.Allow() {
		s.metrics.LimiterDenied("ingress")
		s.logAudit(ctx, "drive", params, "RATE_LIMITED", start)
		return nil, ErrIngressLimited
	}
	s.metrics.LimiterAllowed("ingress")

	depth, err := s.queue.EnqueueDrive(queue.DriveCommand{
		LeftSpeed:  left,
		RightSpeed: right,
		Duration:   duration,
	})
	if err != nil {
		s.logAudit(ctx, "drive", params, "QUEUE_FULL", start)
		return nil, err
	}
	s.logAudit(ctx, "drive", params, "QUEUED", start)
	return respond(http.StatusAccepted, map[string]any{
		"status":      "queued",
		"queue_depth": depth,
	}), nil
}

func (s *Server) handleStop(ctx context.Context, _ map[string]any) (*Response, error) {
	start := time.Now()
	s.actuator.Stop()
	s.queue.Clear()
	s.logAudit(ctx, "stop", nil, "SUCCESS", start)
	return respond(http.StatusOK, map[string]any{"status": "stopped"}), nil
}

func (s *Server) handleBrake(ctx context.Context, _ map[string]any) (*Response, error) {
	start := time.Now()
	s.actuator.Brake()
	s.queue.Clear()
	s.logAudit(ctx, "brake", nil, "SUCCESS", start)
	return respond(http.StatusOK, map[string]any{"status": "braking"}), nil
}

// handleEmergencyStop clears the queue before latching the actuator so no
// queued command can race past the latch onto the hardware.
func (s *Server) handleEmergencyStop(ctx context.Context, _ map[string]any) (*Response, error) {
	start := time.Now()
	s.queue.Clear()
	s.actuator.EmergencyStop()
	s.logAudit(ctx, "emergencyStop", nil, "SUCCESS", start)
	return respond(http.StatusOK, map[string]any{"status": "estop"}), nil
}

func (s *Server) handleReset(ctx context.Context, _ map[string]any) (*Response, error) {
	start := time.Now()
	s.actuator.ResetEstop()
	s.logAudit(ctx, "resetEstop", nil, "SUCCESS", start)
	return respond(http.StatusOK, map[string]any{"status": "ready"}), nil
}

func (s *Server) handlePanTilt(ctx context.Context, payload map[string]any) (*Response, error) {
	pan, err := angleField(payload, "pan_deg", panLimitDeg)
	if err != nil {
		return nil, err
	}
	tilt, err := angleField(payload, "tilt_deg", tiltLimitDeg)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	s.servo.MoveTo(pan, tilt)
	s.logAudit(ctx, "panTilt", map[string]any{"pan_deg": pan, "tilt_deg": tilt}, "SUCCESS", start)
	return respond(http.StatusOK, map[string]any{
		"pan_deg":  s.servo.Pan(),
		"tilt_deg": s.servo.Tilt(),
	}), nil
}

func (s *Server) handleUltrasonic(ctx context.Context, _ map[string]any) (*Response, error) {
	reading, err := s.ultrasonic.Read(ctx)
	if err != nil {
		return nil, err
	}
	history := s.ultrasonic.History()
	return respond(http.StatusOK, map[string]any{
		"distance_m": reading.DistanceM,
		"valid":      reading.Valid,
		"history":    history,
	}), nil
}

func (s *Server) handleLine(ctx context.Context, _ map[string]any) (*Response, error) {
	reading, err := s.line.Read(ctx)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, map[string]any{
		"left":    reading.Left,
		"right":   reading.Right,
		"on_line": reading.OnLine,
	}), nil
}

func (s *Server) handleEncoders(ctx context.Context, _ map[string]any) (*Response, error) {
	if s.encoders == nil {
		return errorDetail(http.StatusNotFound, "Not Found"), nil
	}
	telemetry, err := s.encoders.Read(ctx)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, map[string]any{
		"cumulative_ticks_left":  telemetry.CumulativeTicksLeft,
		"cumulative_ticks_right": telemetry.CumulativeTicksRight,
		"angular_velocity_left":  telemetry.AngularVelocityLeft,
		"angular_velocity_right": telemetry.AngularVelocityRight,
		"linear_velocity_left":   telemetry.LinearVelocityLeft,
		"linear_velocity_right":  telemetry.LinearVelocityRight,
		"valid":                  telemetry.Valid,
	}), nil
}

func (s *Server) handleGetConfig(_ context.Context, _ map[string]any) (*Response, error) {
	return respond(http.StatusOK, s.store.Snapshot()), nil
}

// handlePatchConfig applies recognized fields in a fixed order. Fields
// already applied before a validation failure stay applied.
func (s *Server) handlePatchConfig(ctx context.Context, payload map[string]any) (*Response, error) {
	start := time.Now()
	if raw, ok := payload["ingress_rate_limit"]; ok && raw != nil {
		settings, err := limitSettings(raw, "ingress_rate_limit")
		if err != nil {
			return nil, err
		}
		if err := s.ingress.Configure(settings.RatePerSecond, settings.Burst); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		s.store.SetIngressLimit(settings)
	}
	if raw, ok := payload["execution_rate_limit"]; ok && raw != nil {
		settings, err := limitSettings(raw, "execution_rate_limit")
		if err != nil {
			return nil, err
		}
		if err := s.execution.Configure(settings.RatePerSecond, settings.Burst); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		s.store.SetExecutionLimit(settings)
	}
	if raw, ok := payload["queue_maxsize"]; ok && raw != nil {
		size, valid := numberValue(raw)
		maxsize := int(size)
		if !valid || maxsize <= 0 {
			return nil, validationErrorf("queue_maxsize must be a positive integer")
		}
		if err := s.queue.SetMaxsize(maxsize); err != nil {
			return nil, &ValidationError{Message: err.Error()}
		}
		s.store.SetQueueMaxsize(maxsize)
	}
	s.logAudit(ctx, "patchConfig", payload, "SUCCESS", start)
	return respond(http.StatusOK, s.store.Snapshot()), nil
}

func (s *Server) logAudit(ctx context.Context, action string, params map[string]any, outcome string, start time.Time) {
	if s.audit == nil {
		return
	}
	s.audit.LogAction(ctx, action, params, outcome, time.Since(start))
}

// speedField extracts a required wheel speed in [-1, 1].
func speedField(payload map[string]any, name string) (float64, error) {
	raw, ok := payload[name]
	if !ok || raw == nil {
		return 0, validationErrorf("%s is required", name)
	}
	value, ok := numberValue(raw)
	if !ok {
		return 0, validationErrorf("%s must be a number", name)
	}
	if value < -1 || value > 1 {
		return 0, validationErrorf("%s must be between -1 and 1", name)
	}
	return value, nil
}

// angleField extracts a required angle in [-limit, limit] degrees.
func angleField(payload map[string]any, name string, limit float64) (float64, error) {
	raw, ok := payload[name]
	if !ok || raw == nil {
		return 0, validationErrorf("%s is required", name)
	}
	value, ok := numberValue(raw)
	if !ok {
		return 0, validationErrorf("%s must be a number", name)
	}
	if value < -limit || value > limit {
		return 0, validationErrorf("%s must be between %g and %g degrees", name, -limit, limit)
	}
	return value, nil
}

// limitSettings decodes a rate limit object from a PATCH payload.
func limitSettings(raw any, field string) (config.RateLimitSettings, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return config.RateLimitSettings{}, validationErrorf("%s must be an object", field)
	}
	rate, ok := numberValue(obj["rate_per_second"])
	if !ok {
		return config.RateLimitSettings{}, validationErrorf("%s.rate_per_second must be a number", field)
	}
	burst, ok := numberValue(obj["burst"])
	if !ok {
		return config.RateLimitSettings{}, validationErrorf("%s.burst must be a number", field)
	}
	settings := config.RateLimitSettings{RatePerSecond: rate, Burst: int(burst)}
	if err := settings.Validate(); err != nil {
		return config.RateLimitSettings{}, validationErrorf("%s: %s", field, err.Error())
	}
	return settings, nil
}

// numberValue accepts the numeric shapes encoding/json and hand-built
// payloads produce.
func numberValue(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
