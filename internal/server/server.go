// Package server provides the HTTP API of the eSocial service.
//
// # Schema catalog
//
//   - GET  /api/schemas        - List event types
//   - GET  /api/schemas/{type} - Fields and default state of one event type
//
// # Events (JSON bodies)
//
//   - POST /api/events/generate - Build an event from form data and queue it
//   - POST /api/events/preview  - Build an event and its unsigned lot
//   - GET  /api/events          - List queued events (nrInsc, status, limit)
//   - GET  /api/events/{id}     - One queued event with every XML document
//
// # Events (multipart bodies carrying a PKCS#12 file)
//
//   - POST /api/events/sign     - Sign a queued event or raw XML
//   - POST /api/events/transmit - Transmit a signed event
//   - POST /api/events/submit   - Sign and transmit in one call
//   - POST /api/certificates/describe - Summarize a certificate
//
// Multipart requests carry the container in the "certificate" file part
// and its password in the "password" field. Certificate material is never
// stored.
//
// # Health
//
//   - GET /health - Liveness probe
//   - GET /ready  - Storage connectivity probe
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/sirosfoundation/go-esocial/internal/config"
	"github.com/sirosfoundation/go-esocial/internal/storage"
	"github.com/sirosfoundation/go-esocial/internal/submission"
	"github.com/sirosfoundation/go-esocial/pkg/esocial"
	"github.com/sirosfoundation/go-esocial/pkg/formdata"
	"github.com/sirosfoundation/go-esocial/pkg/keystore"
	"github.com/sirosfoundation/go-esocial/pkg/reliability"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
	"github.com/sirosfoundation/go-esocial/pkg/security"
)

// Server is the eSocial HTTP server
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	httpSrv *http.Server
	service *submission.Service
	store   storage.Store
}

// New creates a new server
func New(cfg *config.Config, service *submission.Service, store storage.Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if service == nil {
		return nil, errors.New("submission service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:  cfg,
		logger:  logger,
		service: service,
		store:   store,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Handler:      s.withRequestID(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.ESocial.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler returns the root handler.
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
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	if s.store != nil {
		return s.store.Close(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	base := strings.TrimSuffix(s.config.Server.BasePath, "/")

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	mux.HandleFunc("GET "+base+"/api/schemas", s.handleListSchemas)
	mux.HandleFunc("GET "+base+"/api/schemas/{eventType}", s.handleGetSchema)

	mux.HandleFunc("POST "+base+"/api/events/generate", s.handleGenerate)
	mux.HandleFunc("POST "+base+"/api/events/preview", s.handlePreview)
	mux.HandleFunc("POST "+base+"/api/events/sign", s.handleSign)
	mux.HandleFunc("POST "+base+"/api/events/transmit", s.handleTransmit)
	mux.HandleFunc("POST "+base+"/api/events/submit", s.handleSubmit)
	mux.HandleFunc("GET "+base+"/api/events", s.handleListEvents)
	mux.HandleFunc("GET "+base+"/api/events/{id}", s.handleGetEvent)

	mux.HandleFunc("POST "+base+"/api/certificates/describe", s.handleDescribeCertificate)
}

// Middleware

type contextKey string

const requestIDContextKey contextKey = "request_id"

// RequestIDFromContext returns the id assigned to the current request
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDContextKey).(string); ok {
		return v
	}
	return ""
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.jsonError(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
	}
	s.jsonResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// Schema handlers

// SchemaSummary is one entry of the schema list
type SchemaSummary struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	RootTag     string       `json:"rootTag"`
	Group       schema.Group `json:"grupo"`
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	schemas := s.service.Catalog().List()
	out := make([]SchemaSummary, 0, len(schemas))
	for _, sch := range schemas {
		out = append(out, SchemaSummary{
			ID:          sch.ID,
			Title:       sch.Title,
			Description: sch.Description,
			RootTag:     sch.RootTag,
			Group:       sch.Group(),
		})
	}
	s.jsonResponse(w, map[string]any{"schemas": out}, http.StatusOK)
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	sch, err := s.service.Catalog().Get(r.PathValue("eventType"))
	if err != nil {
		s.failure(w, r, err, nil)
		return
	}
	s.jsonResponse(w, sch, http.StatusOK)
}

// Event handlers

// GenerateRequest is the body of generate and preview
type GenerateRequest struct {
	EventType string           `json:"eventType"`
	Data      *formdata.Object `json:"data"`
}

func (s *Server) decodeGenerate(w http.ResponseWriter, r *http.Request) (*GenerateRequest, bool) {
	var req GenerateRequest
	body := http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return nil, false
	}
	return &req, true
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeGenerate(w, r)
	if !ok {
		return
	}
	gen, err := s.service.Generate(r.Context(), req.EventType, req.Data)
	if err != nil {
		s.failure(w, r, err, nil)
		return
	}
	s.jsonResponse(w, gen, http.StatusCreated)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeGenerate(w, r)
	if !ok {
		return
	}
	p, err := s.service.Preview(r.Context(), req.EventType, req.Data)
	if err != nil {
		s.failure(w, r, err, nil)
		return
	}
	s.jsonResponse(w, p, http.StatusOK)
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseCertificateForm(w, r)
	if !ok {
		return
	}
	req := form.signRequest()
	signed, err := s.service.Sign(r.Context(), req)
	if err != nil {
		s.failure(w, r, err, &errorDetail{XML: string(req.XML)})
		return
	}
	s.jsonResponse(w, signed, http.StatusOK)
}

func (s *Server) handleTransmit(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseCertificateForm(w, r)
	if !ok {
		return
	}
	req := &submission.TransmitRequest{
		RecordID:  form.recordID,
		SignedXML: form.signedXML,
		PFX:       form.pfx,
		Password:  form.password,
	}
	sent, err := s.service.Transmit(r.Context(), req)
	if err != nil {
		detail := &errorDetail{SignedXML: string(req.SignedXML)}
		if sent != nil {
			detail.Envelope = sent.Envelope
		}
		s.failure(w, r, err, detail)
		return
	}
	s.jsonResponse(w, sent, http.StatusOK)
}

// SubmitResponse is the body returned by submit
type SubmitResponse struct {
	Signed      *submission.Signed      `json:"signed"`
	Transmitted *submission.Transmitted `json:"transmitted"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseCertificateForm(w, r)
	if !ok {
		return
	}
	req := form.signRequest()
	signed, sent, err := s.service.SignAndTransmit(r.Context(), req)
	if err != nil {
		detail := &errorDetail{XML: string(req.XML)}
		if signed != nil {
			detail.SignedXML = signed.XML
		}
		if sent != nil {
			detail.Envelope = sent.Envelope
		}
		s.failure(w, r, err, detail)
		return
	}
	s.jsonResponse(w, SubmitResponse{Signed: signed, Transmitted: sent}, http.StatusOK)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := &storage.EventFilter{
		NrInsc: q.Get("nrInsc"),
		Status: storage.EventStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.jsonError(w, "invalid status", http.StatusBadRequest)
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			s.jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	events, err := s.service.ListEvents(r.Context(), filter)
	if err != nil {
		s.failure(w, r, err, nil)
		return
	}
	if events == nil {
		events = []*storage.EventRecord{}
	}
	s.jsonResponse(w, map[string]any{"events": events}, http.StatusOK)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.failure(w, r, err, nil)
		return
	}
	s.jsonResponse(w, rec, http.StatusOK)
}

func (s *Server) handleDescribeCertificate(w http.ResponseWriter, r *http.Request) {
	form, ok := s.parseCertificateForm(w, r)
	if !ok {
		return
	}
	info, err := s.service.DescribeCertificate(form.pfx, form.password)
	if err != nil {
		s.failure(w, r, err, nil)
		return
	}
	s.jsonResponse(w, info, http.StatusOK)
}

// Multipart input

type certificateForm struct {
	pfx       []byte
	password  string
	recordID  string
	rootTag   string
	xml       []byte
	signedXML []byte
}

func (f *certificateForm) signRequest() *submission.SignRequest {
	return &submission.SignRequest{
		RecordID: f.recordID,
		XML:      f.xml,
		RootTag:  f.rootTag,
		PFX:      f.pfx,
		Password: f.password,
	}
}

func (s *Server) parseCertificateForm(w http.ResponseWriter, r *http.Request) (*certificateForm, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.Server.MaxUploadBytes); err != nil {
		s.jsonError(w, "invalid multipart body", http.StatusBadRequest)
		return nil, false
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("certificate")
	if err != nil {
		s.jsonError(w, "certificate file is required", http.StatusBadRequest)
		return nil, false
	}
	defer file.Close()
	pfx, err := io.ReadAll(file)
	if err != nil {
		s.jsonError(w, "reading certificate file", http.StatusBadRequest)
		return nil, false
	}

	return &certificateForm{
		pfx:       pfx,
		password:  r.FormValue("password"),
		recordID:  r.FormValue("recordId"),
		rootTag:   r.FormValue("rootTag"),
		xml:       []byte(r.FormValue("xml")),
		signedXML: []byte(r.FormValue("signedXml")),
	}, true
}

// Errors

type errorDetail struct {
	XML       string
	SignedXML string
	Envelope  string
}

// ErrorResponse is the body of every failed request. The XML produced so
// far is echoed back for audit.
type ErrorResponse struct {
	Error     string                `json:"error"`
	Problems  []schema.FieldProblem `json:"problems,omitempty"`
	XML       string                `json:"xml,omitempty"`
	SignedXML string                `json:"signedXml,omitempty"`
	Envelope  string                `json:"envelope,omitempty"`
	RequestID string                `json:"requestId,omitempty"`
}

func (s *Server) failure(w http.ResponseWriter, r *http.Request, err error, detail *errorDetail) {
	status := statusFor(err)
	resp := ErrorResponse{
		Error:     err.Error(),
		RequestID: RequestIDFromContext(r.Context()),
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		resp.Problems = verr.Problems
	}
	if detail != nil {
		resp.XML = detail.XML
		resp.SignedXML = detail.SignedXML
		resp.Envelope = detail.Envelope
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"path", r.URL.Path,
			"request_id", resp.RequestID,
			"error", err)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
		}
	} else {
		s.logger.Debug("request rejected",
			"path", r.URL.Path,
			"request_id", resp.RequestID,
			"status", status,
			"error", err)
	}
	s.jsonResponse(w, resp, status)
}

// statusFor maps error classes to HTTP status codes.
func statusFor(err error) int {
	var (
		verr    *schema.ValidationError
		xerr    *keystore.ExtractionError
		missing *esocial.MissingFieldError
		serr    *security.SigningError
		terr    *esocial.TransportError
	)
	switch {
	case errors.As(err, &verr),
		errors.As(err, &xerr),
		errors.As(err, &missing),
		errors.Is(err, esocial.ErrMalformedDocument),
		errors.Is(err, submission.ErrInvalidRequest),
		errors.Is(err, formdata.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, schema.ErrUnknownEventType):
		return http.StatusNotFound
	case errors.Is(err, submission.ErrNotSigned),
		errors.Is(err, reliability.ErrDuplicateID):
		return http.StatusConflict
	case errors.As(err, &serr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &terr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// Helper functions

func (s *Server) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("writing response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	s.jsonResponse(w, ErrorResponse{Error: message}, status)
}
