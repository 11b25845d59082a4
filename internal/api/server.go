// Package api serves the insight status HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	klog "github.com/cruxpool/flux-insight-api/internal/log"
	"github.com/cruxpool/flux-insight-api/internal/metrics"
	"github.com/cruxpool/flux-insight-api/internal/rpcclient"
	"github.com/cruxpool/flux-insight-api/internal/status"
)

// DefaultPrefix is the route prefix when Config.Prefix is empty.
const DefaultPrefix = "api"

// Config controls the HTTP server.
type Config struct {
	Addr        string
	Prefix      string        // Route prefix without slashes, e.g. "api".
	AllowedIPs  []string      // IPs or CIDRs; empty allows all.
	CORSOrigins []string      // "*" or exact origins; empty disables CORS.
	Metrics     bool          // Serve /metrics.
	MaxAge      time.Duration // Cache-Control max-age for /circulation.
}

// Server is the insight API HTTP server.
type Server struct {
	addr        string
	ctrl        *status.Controller
	handler     http.Handler
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet
	restricted  bool     // Set when any allow-list entry was configured.
	corsOrigins []string // Empty = no CORS headers.
	maxAge      time.Duration
}

// New creates a server answering from ctrl.
func New(cfg Config, ctrl *status.Controller) *Server {
	s := &Server{
		addr:        cfg.Addr,
		ctrl:        ctrl,
		logger:      klog.API,
		allowedNets: parseAllowedIPs(cfg.AllowedIPs),
		restricted:  len(cfg.AllowedIPs) > 0,
		corsOrigins: cfg.CORSOrigins,
		maxAge:      cfg.MaxAge,
	}

	prefix := "/" + strings.Trim(cfg.Prefix, "/")
	if prefix == "/" {
		prefix = "/" + DefaultPrefix
	}

	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/status", s.wrap("status", s.handleStatus))
	mux.HandleFunc(prefix+"/sync", s.wrap("sync", s.handleSync))
	mux.HandleFunc(prefix+"/peer", s.wrap("peer", s.handlePeer))
	mux.HandleFunc(prefix+"/version", s.wrap("version", s.handleVersion))
	mux.HandleFunc(prefix+"/circulation", s.wrap("circulation", s.handleCirculation))
	mux.HandleFunc("/healthz", s.wrap("healthz", s.handleHealthz))
	if cfg.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	s.handler = mux

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// wrap applies IP filtering, CORS and method checks, and counts the request.
func (s *Server) wrap(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		}()

		if s.restricted {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(rec, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(rec, "forbidden", http.StatusForbidden)
				return
			}
		}

		s.setCORSHeaders(rec, r)

		switch r.Method {
		case http.MethodOptions:
			rec.WriteHeader(http.StatusNoContent)
			return
		case http.MethodGet, http.MethodHead:
		default:
			rec.Header().Set("Allow", "GET, HEAD, OPTIONS")
			http.Error(rec, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		next(rec, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	body, err := s.ctrl.Show(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSONP(w, r, body)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	body, err := s.ctrl.Sync(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	writeJSONP(w, r, body)
}

func (s *Server) handlePeer(w http.ResponseWriter, r *http.Request) {
	writeJSONP(w, r, s.ctrl.Peer())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSONP(w, r, s.ctrl.Version())
}

func (s *Server) handleCirculation(w http.ResponseWriter, r *http.Request) {
	body, snap, err := s.ctrl.Circulation(r.Context())
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("ETag", snap.ETag)
	h.Set("X-Block-Height", strconv.FormatInt(snap.Height, 10))
	if s.maxAge > 0 {
		h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.maxAge/time.Second)))
	}
	if etagMatches(r.Header.Get("If-None-Match"), snap.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSONP(w, r, body)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSONP(w, r, struct {
		Status string `json:"status"`
	}{"ok"})
}

// handleError writes a node failure. Errors carrying an RPC code are the
// caller's fault (400); anything else means the node is unavailable (503).
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusServiceUnavailable
	msg := err.Error()

	var rpcErr *rpcclient.RPCError
	if errors.As(err, &rpcErr) {
		code = http.StatusBadRequest
		msg = fmt.Sprintf("%s. Code:%d", rpcErr.Message, rpcErr.Code)
	}

	s.logger.Warn().
		Err(err).
		Str("path", r.URL.Path).
		Int("status", code).
		Msg("Request failed")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	w.Write([]byte(msg))
}

// etagMatches reports whether an If-None-Match header value covers etag.
func etagMatches(header, etag string) bool {
	if header == "" || etag == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
		w.Header().Set("Access-Control-Expose-Headers", "ETag, X-Block-Height")
	}
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.code = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
