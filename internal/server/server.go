// Package server provides the HTTP lookup service in front of the discovery
// client.
//
// # Lookup API
//
//   - GET {base}/networks                                          - Configured networks
//   - GET {base}/{network}/participants/{participant}              - SMP location
//   - GET {base}/{network}/participants/{participant}/services     - Published document types
//   - GET {base}/{network}/participants/{participant}/services/{docType}?process= - Endpoint and trust verdicts
//
// Identifiers are given in their URI-encoded form ("scheme::value") and must
// be percent-encoded in the path.
//
// # Cache Management (requires X-Admin-Key)
//
//   - DELETE {base}/{network}/participants/{participant} - Forget a participant
//   - POST   /admin/cache/purge                          - Drop expired entries
//
// # Health
//
//   - GET /health - Liveness probe
//   - GET /ready  - Readiness probe
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sirosfoundation/go-bdxl/internal/config"
	"github.com/sirosfoundation/go-bdxl/pkg/discovery"
	"github.com/sirosfoundation/go-bdxl/pkg/identifier"
	"github.com/sirosfoundation/go-bdxl/pkg/naptr"
	"github.com/sirosfoundation/go-bdxl/pkg/smp"
	"github.com/sirosfoundation/go-bdxl/pkg/trust"
)

// Server is the discovery lookup HTTP server
type Server struct {
	config   *config.Config
	logger   *slog.Logger
	httpSrv  *http.Server
	client   *discovery.Client
	networks map[string]discovery.Network
}

// New creates a new lookup server for the given networks
func New(cfg *config.Config, client *discovery.Client, networks map[string]discovery.Network, logger *slog.Logger) (*Server, error) {
	if client == nil {
		return nil, errors.New("discovery client is required")
	}
	if len(networks) == 0 {
		return nil, errors.New("at least one network is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		logger:   logger,
		client:   client,
		networks: networks,
	}
	if s.config.Server.AdminKey == "" {
		logger.Warn("no admin key configured - cache management endpoints are disabled")
	}

	// Set up HTTP routes
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins listening on the specified address
func (s *Server) Start(addr string) error {
	s.httpSrv.Addr = addr
	s.logger.Info("starting server", "addr", addr, "tls", s.config.Server.TLS.Enabled)
	if s.config.Server.TLS.Enabled {
		return s.httpSrv.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	basePath := strings.TrimSuffix(s.config.Server.BasePath, "/")

	// Health check (no auth required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("GET "+basePath+"/networks", s.handleListNetworks)
	mux.HandleFunc("GET "+basePath+"/{network}/participants/{participant}", s.withNetwork(s.handleLookupSMP))
	mux.HandleFunc("GET "+basePath+"/{network}/participants/{participant}/services", s.withNetwork(s.handleListServices))
	mux.HandleFunc("GET "+basePath+"/{network}/participants/{participant}/services/{docType}", s.withNetwork(s.handleDiscoverEndpoint))

	// Cache management (admin-only)
	mux.HandleFunc("DELETE "+basePath+"/{network}/participants/{participant}", s.withAdmin(s.withNetwork(s.handleForget)))
	mux.HandleFunc("POST /admin/cache/purge", s.withAdmin(s.handlePurge))
}

// Middleware

func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Check for admin API key in header
		apiKey := r.Header.Get("X-Admin-Key")
		adminKey := s.config.Server.AdminKey
		if apiKey == "" || adminKey == "" || subtle.ConstantTimeCompare([]byte(apiKey), []byte(adminKey)) != 1 {
			s.jsonError(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// withNetwork resolves the {network} path value and the {participant}
// identifier before calling next
func (s *Server) withNetwork(next func(http.ResponseWriter, *http.Request, discovery.Network, identifier.Identifier)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		network, ok := s.networks[r.PathValue("network")]
		if !ok {
			s.jsonError(w, "unknown network", http.StatusNotFound)
			return
		}
		participant, err := identifier.ParseURIEncoded(r.PathValue("participant"))
		if err != nil {
			s.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		next(w, r, network, participant)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]interface{}{
		"status":   "ready",
		"networks": len(s.networks),
	}, http.StatusOK)
}

// Lookup handlers

func (s *Server) handleListNetworks(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.networks))
	for name := range s.networks {
		names = append(names, name)
	}
	sort.Strings(names)

	networks := make([]NetworkResponse, 0, len(names))
	for _, name := range names {
		n := s.networks[name]
		networks = append(networks, NetworkResponse{
			Name:       name,
			Zone:       n.Zone.ZoneSuffix,
			SMPAnchors: n.SMPAnchors.ID(),
			APAnchors:  n.APAnchors.ID(),
		})
	}

	s.jsonResponse(w, map[string]interface{}{
		"networks": networks,
		"total":    len(networks),
	}, http.StatusOK)
}

func (s *Server) handleLookupSMP(w http.ResponseWriter, r *http.Request, network discovery.Network, participant identifier.Identifier) {
	location, err := s.client.LookupSMP(r.Context(), participant.Scheme, participant.Value, network)
	if err != nil {
		s.lookupError(w, "SMP lookup failed", err)
		return
	}

	s.jsonResponse(w, LocationResponse{
		Participant: participant.URIEncoded(),
		FQDN:        location.FQDN,
		SMPURL:      location.TargetURL,
		ResolvedAt:  location.ResolvedAt,
	}, http.StatusOK)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request, network discovery.Network, participant identifier.Identifier) {
	docTypes, err := s.client.ListDocumentTypes(r.Context(), participant, network)
	if err != nil {
		s.lookupError(w, "listing document types failed", err)
		return
	}

	encoded := make([]string, 0, len(docTypes))
	for _, dt := range docTypes {
		encoded = append(encoded, dt.URIEncoded())
	}

	s.jsonResponse(w, map[string]interface{}{
		"participant":   participant.URIEncoded(),
		"documentTypes": encoded,
		"total":         len(encoded),
	}, http.StatusOK)
}

func (s *Server) handleDiscoverEndpoint(w http.ResponseWriter, r *http.Request, network discovery.Network, participant identifier.Identifier) {
	docType, err := identifier.ParseURIEncoded(r.PathValue("docType"))
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.client.DiscoverEndpoint(r.Context(), participant, docType, r.URL.Query().Get("process"), network)
	if err != nil {
		s.lookupError(w, "endpoint discovery failed", err)
		return
	}

	s.jsonResponse(w, newEndpointResponse(result), http.StatusOK)
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request, network discovery.Network, participant identifier.Identifier) {
	if err := s.client.Forget(r.Context(), participant, network); err != nil {
		s.lookupError(w, "forgetting participant failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]int{"purged": s.client.Purge()}, http.StatusOK)
}

// Response types

// NetworkResponse describes a configured network
type NetworkResponse struct {
	Name       string `json:"name"`
	Zone       string `json:"zone"`
	SMPAnchors string `json:"smpAnchors,omitempty"`
	APAnchors  string `json:"apAnchors,omitempty"`
}

// LocationResponse is the resolved SMP of a participant
type LocationResponse struct {
	Participant string    `json:"participant"`
	FQDN        string    `json:"fqdn"`
	SMPURL      string    `json:"smpUrl"`
	ResolvedAt  time.Time `json:"resolvedAt"`
}

// VerdictResponse is a certificate check outcome
type VerdictResponse struct {
	Verdict trust.Verdict `json:"verdict"`
	Reason  string        `json:"reason,omitempty"`
}

// EndpointResponse is a discovered access point with its trust verdicts
type EndpointResponse struct {
	LookupID              string          `json:"lookupId"`
	Participant           string          `json:"participant"`
	DocumentType          string          `json:"documentType"`
	SMPURL                string          `json:"smpUrl"`
	TransportProfile      string          `json:"transportProfile"`
	EndpointURL           string          `json:"endpointUrl"`
	Certificate           string          `json:"certificate,omitempty"`
	ServiceActivationDate *time.Time      `json:"serviceActivationDate,omitempty"`
	ServiceExpirationDate *time.Time      `json:"serviceExpirationDate,omitempty"`
	TechnicalContactURL   string          `json:"technicalContactUrl,omitempty"`
	Description           string          `json:"description,omitempty"`
	SMPTrust              VerdictResponse `json:"smpTrust"`
	APTrust               VerdictResponse `json:"apTrust"`
	Trusted               bool            `json:"trusted"`
	CheckedAt             time.Time       `json:"checkedAt"`
}

func newVerdictResponse(r trust.Result) VerdictResponse {
	v := VerdictResponse{Verdict: r.Verdict}
	if r.Reason != nil {
		v.Reason = r.Reason.Error()
	}
	return v
}

func newEndpointResponse(result *discovery.Result) EndpointResponse {
	ep := result.Endpoint
	resp := EndpointResponse{
		LookupID:              result.LookupID,
		Participant:           result.Participant.URIEncoded(),
		DocumentType:          result.DocumentType.URIEncoded(),
		SMPURL:                result.SMP.TargetURL,
		TransportProfile:      ep.TransportProfile,
		EndpointURL:           ep.EndpointURL,
		ServiceActivationDate: ep.ServiceActivationDate,
		ServiceExpirationDate: ep.ServiceExpirationDate,
		TechnicalContactURL:   ep.TechnicalContactURL,
		Description:           ep.Description,
		SMPTrust:              newVerdictResponse(result.SMPTrust),
		APTrust:               newVerdictResponse(result.APTrust),
		Trusted:               result.Trusted(),
		CheckedAt:             result.CheckedAt,
	}
	if ep.Certificate != nil {
		resp.Certificate = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ep.Certificate.Raw}))
	}
	return resp
}

// Helper functions

// lookupStatus maps discovery failures to HTTP status codes
func lookupStatus(err error) int {
	switch {
	case errors.Is(err, identifier.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, naptr.ErrNoRecordFound),
		errors.Is(err, naptr.ErrNXDomain),
		errors.Is(err, smp.ErrParticipantNotFound),
		errors.Is(err, smp.ErrProcessNotFound),
		errors.Is(err, smp.ErrEndpointNotFound),
		errors.Is(err, discovery.ErrServiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) lookupError(w http.ResponseWriter, message string, err error) {
	status := lookupStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(message, "error", err)
	} else {
		s.logger.Debug(message, "error", err)
	}
	s.jsonError(w, fmt.Sprintf("%s: %v", message, err), status)
}

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	s.jsonResponse(w, map[string]string{"error": message}, status)
}
