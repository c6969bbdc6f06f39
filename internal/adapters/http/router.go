package httpadapter

import (
	"encoding/json"
	"net/http"

	"github.com/kirillkom/platform-qa/internal/config"
	"github.com/kirillkom/platform-qa/internal/core/domain"
	"github.com/kirillkom/platform-qa/internal/core/ports"
	"github.com/kirillkom/platform-qa/internal/observability/metrics"
)

const metricsService = "api"

type Router struct {
	cfg     config.Config
	chat    ports.ChatResponder
	parties ports.PartyCatalog
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(cfg config.Config, chat ports.ChatResponder, parties ports.PartyCatalog) *Router {
	return &Router{
		cfg:     cfg,
		chat:    chat,
		parties: parties,
	}
}

// WithMetrics exposes /metrics and counts requests and rejections.
func (rt *Router) WithMetrics(m *metrics.HTTPServerMetrics) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/parties", rt.listParties)
	api.Handle("POST /v1/chat", bearerAuthMiddleware(http.HandlerFunc(rt.chatStream), rt.cfg.APIKey))

	var guarded http.Handler = api
	guarded = backpressureMiddleware(guarded, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait, rt.rejected("backpressure"))
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.rejected("rate_limit"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", guarded)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(metricsService, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) rejected(reason string) func() {
	return func() {
		if rt.metrics != nil {
			rt.metrics.RecordRejected(metricsService, reason)
		}
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type partiesResponse struct {
	Parties []domain.Party `json:"parties"`
}

func (rt *Router) listParties(w http.ResponseWriter, r *http.Request) {
	parties, err := rt.parties.ListParties(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, partiesResponse{Parties: parties})
}

type errorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
