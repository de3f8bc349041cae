package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/analytics"
	"github.com/arupsarkar-sfdc/Pronto-Food-Service-Mobile-sub001/internal/domain"
)

// Stats defaults and limits.
const (
	DefaultBuckets = 10
	MaxBuckets     = 60
)

// Store persists consent and analytics settings.
type Store interface {
	GetAnalyticsSettings(ctx context.Context) (domain.AnalyticsConfig, error)
	UpsertAnalyticsSettings(ctx context.Context, cfg domain.AnalyticsConfig) error
	GetConsent(ctx context.Context) (domain.ConsentState, error)
	UpsertConsent(ctx context.Context, state domain.ConsentState, updatedAt time.Time) error
}

// ScreenTracker accepts screen view submissions.
type ScreenTracker interface {
	TrackScreen(ctx context.Context, screenName string)
}

// LaunchTracker accepts app launch submissions.
type LaunchTracker interface {
	TrackAppLaunchAs(ctx context.Context, appName, appVersion string)
}

// ConsentSetter pushes consent changes into the live ingestion client.
type ConsentSetter interface {
	SetConsent(state domain.ConsentState)
}

// SettingsNotifier announces settings changes to the configuration
// manager.
type SettingsNotifier interface {
	Emit(ctx context.Context, event domain.CredentialsUpdated) error
}

// ViewStats reads screen view counters for the stats endpoint.
type ViewStats interface {
	CountsFor(ctx context.Context, screenName string, window time.Duration, n int, now time.Time) ([]analytics.BucketCount, error)
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// Pinger reports reachability of an optional backing component.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	store    Store
	screens  ScreenTracker
	launches LaunchTracker
	consents ConsentSetter
	notifier SettingsNotifier
	log      logrus.FieldLogger

	stats      ViewStats         // optional, nil = stats endpoint disabled
	db         HealthChecker     // optional, for verbose /health
	components map[string]Pinger // optional extras for verbose /health
	auth       *Authenticator    // optional, nil = admin routes open

	clock func() time.Time
}

func NewHandler(store Store, screens ScreenTracker, launches LaunchTracker, consents ConsentSetter, notifier SettingsNotifier, log logrus.FieldLogger) *Handler {
	return &Handler{
		store:    store,
		screens:  screens,
		launches: launches,
		consents: consents,
		notifier: notifier,
		log:      log,
		clock:    time.Now,
	}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithHealthComponent registers an additional component for verbose
// /health responses.
func (h *Handler) WithHealthComponent(name string, p Pinger) *Handler {
	if h.components == nil {
		h.components = make(map[string]Pinger)
	}
	h.components[name] = p
	return h
}

// WithViewStats enables the screen stats endpoint.
func (h *Handler) WithViewStats(stats ViewStats) *Handler {
	h.stats = stats
	return h
}

// WithAuth guards the admin routes with bearer token auth.
func (h *Handler) WithAuth(auth *Authenticator) *Handler {
	h.auth = auth
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/v1/screens" && r.Method == http.MethodPost:
		h.trackScreen(w, r)

	case path == "/v1/screens/stats" && r.Method == http.MethodGet:
		h.screenStats(w, r)

	case path == "/v1/launches" && r.Method == http.MethodPost:
		h.trackLaunch(w, r)

	case path == "/v1/consent" && r.Method == http.MethodGet:
		h.getConsent(w, r)

	case path == "/v1/consent" && r.Method == http.MethodPut:
		h.putConsent(w, r)

	case path == "/v1/admin/datacloud" && r.Method == http.MethodGet:
		h.requireAdmin(w, r, h.getSettings)

	case path == "/v1/admin/datacloud" && r.Method == http.MethodPut:
		h.requireAdmin(w, r, h.putSettings)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// requireAdmin validates the bearer token before dispatching. Without a
// configured authenticator the route is open; main logs a warning for
// that mode at startup.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if h.auth == nil {
		next(w, r)
		return
	}

	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if _, err := h.auth.Validate(token); err != nil {
		h.log.Debugf("api: admin auth rejected: %v", err)
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	next(w, r)
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	// Check if verbose mode requested via ?verbose=true
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || (h.db == nil && len(h.components) == 0) {
		// Simple health check - just return ok
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	// Verbose health check - check all components
	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components["database"] = "unhealthy: " + err.Error()
		} else {
			resp.Components["database"] = "healthy"
		}
	}

	for name, p := range h.components {
		if err := p.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Components[name] = "unhealthy: " + err.Error()
		} else {
			resp.Components[name] = "healthy"
		}
	}

	// Return appropriate status code based on health
	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) trackScreen(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent DoS via large payloads
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req TrackScreenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Check if error is due to body size limit
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateTrackScreen(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Accepted means the request was well-formed. Whether the event
	// survives consent and delivery stays internal.
	h.screens.TrackScreen(r.Context(), req.ScreenName)

	writeJSON(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

func (h *Handler) trackLaunch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	// The body is optional; an empty one means "use build defaults".
	var req TrackLaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	h.launches.TrackAppLaunchAs(r.Context(), req.AppName, req.AppVersion)

	writeJSON(w, http.StatusAccepted, AcceptedResponse{Accepted: true})
}

func (h *Handler) getConsent(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.GetConsent(r.Context())
	if err != nil {
		h.log.Errorf("api: get consent error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read consent")
		return
	}

	writeJSON(w, http.StatusOK, ConsentResponse{State: string(state)})
}

func (h *Handler) putConsent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	state, err := validateConsent(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Persist first: the store is authoritative, the live client is a
	// mirror.
	if err := h.store.UpsertConsent(r.Context(), state, h.clock().UTC()); err != nil {
		h.log.Errorf("api: upsert consent error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save consent")
		return
	}
	h.consents.SetConsent(state)

	writeJSON(w, http.StatusOK, ConsentResponse{State: string(state)})
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.GetAnalyticsSettings(r.Context())
	if err != nil {
		h.log.Errorf("api: get settings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}

	resp := SettingsResponse{
		AppID:         maskAppID(cfg.AppID),
		Endpoint:      cfg.Endpoint,
		EnableLogging: cfg.EnableLogging,
		Configured:    cfg.IsConfigured(),
	}
	if !cfg.UpdatedAt.IsZero() {
		resp.UpdatedAt = formatTime(cfg.UpdatedAt)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateSettings(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := domain.AnalyticsConfig{
		AppID:         req.AppID,
		Endpoint:      req.Endpoint,
		EnableLogging: req.EnableLogging,
		UpdatedAt:     h.clock().UTC(),
	}

	if err := h.store.UpsertAnalyticsSettings(r.Context(), cfg); err != nil {
		h.log.Errorf("api: upsert settings error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}

	if err := h.notifier.Emit(r.Context(), domain.CredentialsUpdated{UpdatedAt: cfg.UpdatedAt}); err != nil {
		// Settings are saved; the manager re-reads the store on the
		// next signal, so a dropped notification delays but never
		// loses them.
		h.log.Warnf("api: settings saved but notify failed: %v", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) screenStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, http.StatusServiceUnavailable, "screen stats unavailable: no counter backend")
		return
	}

	q, err := parseStatsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buckets, err := h.stats.CountsFor(r.Context(), q.screen, q.window, q.count, h.clock())
	if err != nil {
		h.log.Errorf("api: screen stats error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read counters")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		Screen:  q.screen,
		Window:  q.label,
		Buckets: buckets,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// maskAppID hides the credential value while showing whether one is set.
func maskAppID(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

type statsQuery struct {
	screen string
	window time.Duration
	label  string
	count  int
}

// parseStatsQuery extracts and validates the stats query parameters.
// The bucket count defaults to DefaultBuckets and is capped at
// MaxBuckets; zero means "use default".
func parseStatsQuery(r *http.Request) (statsQuery, error) {
	q := statsQuery{count: DefaultBuckets}

	q.screen = r.URL.Query().Get("screen")
	if q.screen == "" {
		return statsQuery{}, fmt.Errorf("screen is required")
	}

	q.label = r.URL.Query().Get("window")
	window, err := analytics.ParseWindow(q.label)
	if err != nil {
		return statsQuery{}, err
	}
	q.window = window
	if q.label == "" {
		q.label = "1m"
	}

	if countStr := r.URL.Query().Get("buckets"); countStr != "" {
		n, err := strconv.Atoi(countStr)
		if err != nil {
			return statsQuery{}, err
		}
		if n < 0 {
			return statsQuery{}, strconv.ErrRange
		}
		if n > MaxBuckets {
			return statsQuery{}, &bucketsExceededError{max: MaxBuckets}
		}
		if n > 0 {
			q.count = n
		}
	}

	return q, nil
}

type bucketsExceededError struct {
	max int
}

func (e *bucketsExceededError) Error() string {
	return "buckets exceeds maximum of " + strconv.Itoa(e.max)
}
