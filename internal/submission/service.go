// Package submission runs the request-scoped eSocial flow: generate an
// event from form data, preview its lot, sign it with a caller supplied
// PKCS#12 certificate, transmit it, and record every step in the event
// queue.
//
// Certificate material lives only for the duration of one call and is
// cleared before the call returns.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sirosfoundation/go-esocial/internal/storage"
	"github.com/sirosfoundation/go-esocial/pkg/esocial"
	"github.com/sirosfoundation/go-esocial/pkg/event"
	"github.com/sirosfoundation/go-esocial/pkg/formdata"
	"github.com/sirosfoundation/go-esocial/pkg/keystore"
	"github.com/sirosfoundation/go-esocial/pkg/message"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
	"github.com/sirosfoundation/go-esocial/pkg/security"
)

const tracerName = "github.com/sirosfoundation/go-esocial/internal/submission"

var (
	// ErrInvalidRequest is returned when a request lacks required input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotSigned is returned when transmitting a record that has no
	// signed document yet.
	ErrNotSigned = errors.New("event has not been signed")
)

// Config holds the collaborators of a Service.
type Config struct {
	Registry *event.Registry
	Client   *esocial.Client
	Store    storage.Store
	// Validator checks the signing certificate. Nil skips the checks.
	Validator security.CertificateValidator
	Logger    *slog.Logger
}

// Service orchestrates generation, signing and transmission.
type Service struct {
	registry  *event.Registry
	client    *esocial.Client
	store     storage.Store
	validator security.CertificateValidator
	logger    *slog.Logger
	tracer    trace.Tracer
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("eSocial client is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("event store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry:  cfg.Registry,
		client:    cfg.Client,
		store:     cfg.Store,
		validator: cfg.Validator,
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}, nil
}

// Catalog returns the schema catalog events are generated from.
func (s *Service) Catalog() *schema.Catalog {
	return s.registry.Catalog()
}

// Generated is a newly generated, queued event.
type Generated struct {
	RecordID  string       `json:"recordId"`
	EventType string       `json:"eventType"`
	RootTag   string       `json:"rootTag"`
	EventID   string       `json:"eventId"`
	Group     schema.Group `json:"grupo"`
	XML       string       `json:"xml"`
}

// Generate builds an event from form data and queues it as pending.
func (s *Service) Generate(ctx context.Context, eventType string, data *formdata.Object) (*Generated, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Generate",
		trace.WithAttributes(attribute.String("esocial.event_type", eventType)))
	defer span.End()

	doc, err := s.build(eventType, data)
	if err != nil {
		return nil, spanError(span, err)
	}

	rec := &storage.EventRecord{
		EventType: doc.EventType,
		RootTag:   doc.RootTag,
		EventID:   doc.ID,
		Group:     int(doc.Group),
		TpInsc:    doc.TpInsc,
		NrInsc:    doc.NrInsc,
		Status:    storage.StatusPending,
		XML:       string(doc.XML),
	}
	if err := s.store.CreateEvent(ctx, rec); err != nil {
		return nil, spanError(span, fmt.Errorf("storing event: %w", err))
	}

	s.logger.Info("event generated",
		slog.String("event_type", doc.EventType),
		slog.String("event_id", doc.ID),
		slog.String("record_id", rec.ID))

	return &Generated{
		RecordID:  rec.ID,
		EventType: doc.EventType,
		RootTag:   doc.RootTag,
		EventID:   doc.ID,
		Group:     doc.Group,
		XML:       string(doc.XML),
	}, nil
}

// Preview is an unsigned event and the lot it would travel in.
type Preview struct {
	EventType string       `json:"eventType"`
	RootTag   string       `json:"rootTag"`
	EventID   string       `json:"eventId"`
	Group     schema.Group `json:"grupo"`
	XML       string       `json:"xml"`
	Batch     string       `json:"batch"`
}

// Preview builds an event and its unsigned lot without queueing anything.
func (s *Service) Preview(ctx context.Context, eventType string, data *formdata.Object) (*Preview, error) {
	_, span := s.tracer.Start(ctx, "submission.Preview",
		trace.WithAttributes(attribute.String("esocial.event_type", eventType)))
	defer span.End()

	doc, err := s.build(eventType, data)
	if err != nil {
		return nil, spanError(span, err)
	}
	lot, err := message.WrapInBatch(doc.XML, doc.Group, doc.NrInsc, doc.TpInsc)
	if err != nil {
		return nil, spanError(span, err)
	}
	return &Preview{
		EventType: doc.EventType,
		RootTag:   doc.RootTag,
		EventID:   doc.ID,
		Group:     doc.Group,
		XML:       string(doc.XML),
		Batch:     string(lot),
	}, nil
}

// build validates the form against its catalog schema and serializes it.
// Types missing from the catalog fall back to the generic root tag.
func (s *Service) build(eventType string, data *formdata.Object) (*event.Document, error) {
	if eventType == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidRequest)
	}
	if data == nil {
		data = formdata.New()
	}

	sch, err := s.registry.Catalog().Get(eventType)
	if errors.Is(err, schema.ErrUnknownEventType) {
		s.logger.Warn("event type not in catalog, using generic root tag",
			slog.String("event_type", eventType))
		expanded, err := formdata.Expand(data)
		if err != nil {
			return nil, err
		}
		return s.registry.Serializer().Serialize(eventType, expanded)
	}
	if err != nil {
		return nil, err
	}

	form, err := s.registry.Prepare(sch, data)
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(form); err != nil {
		return nil, err
	}
	return s.registry.Generate(eventType, data)
}

// SignRequest names the document to sign and carries the certificate.
// Either RecordID or XML must be set.
type SignRequest struct {
	RecordID string
	XML      []byte
	// RootTag defaults to the root tag of the record or of XML.
	RootTag  string
	PFX      []byte
	Password string
}

// Signed is a signed event.
type Signed struct {
	RecordID    string                   `json:"recordId,omitempty"`
	EventType   string                   `json:"eventType,omitempty"`
	RootTag     string                   `json:"rootTag"`
	EventID     string                   `json:"eventId"`
	Group       schema.Group             `json:"grupo"`
	XML         string                   `json:"xml"`
	SignedAt    time.Time                `json:"signedAt"`
	Certificate keystore.CertificateInfo `json:"certificate"`
}

// Sign signs a queued record or raw event XML.
func (s *Service) Sign(ctx context.Context, req *SignRequest) (*Signed, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Sign")
	defer span.End()

	doc, rec, err := s.resolveUnsigned(ctx, req)
	if err != nil {
		return nil, spanError(span, err)
	}
	span.SetAttributes(attribute.String("esocial.event_id", doc.ID))

	material, err := keystore.Extract(req.PFX, req.Password)
	if err != nil {
		s.recordFailure(ctx, rec, err)
		return nil, spanError(span, err)
	}
	defer material.Clear()

	signed, err := s.sign(ctx, doc, material)
	if err != nil {
		s.recordFailure(ctx, rec, err)
		return nil, spanError(span, err)
	}

	out := &Signed{
		EventType:   signed.EventType,
		RootTag:     signed.RootTag,
		EventID:     signed.ID,
		Group:       signed.Group,
		XML:         string(signed.XML),
		SignedAt:    signed.SignedAt,
		Certificate: material.Describe(),
	}
	if rec != nil {
		out.RecordID = rec.ID
		err := s.store.UpdateEventStatus(ctx, rec.ID, &storage.StatusUpdate{
			Status:    storage.StatusSigned,
			SignedXML: out.XML,
		})
		if err != nil {
			return nil, spanError(span, fmt.Errorf("updating event: %w", err))
		}
	}

	s.logger.Info("event signed",
		slog.String("event_id", out.EventID),
		slog.String("root_tag", out.RootTag),
		slog.String("subject", out.Certificate.Subject))
	return out, nil
}

func (s *Service) sign(ctx context.Context, doc *event.Document, material *keystore.Material) (*security.SignedDocument, error) {
	opts := []security.SignerOption{security.WithChain(material.Chain())}
	if s.validator != nil {
		opts = append(opts, security.WithCertificateValidator(s.validator))
	}
	key, cert, err := material.SigningPair()
	if err != nil {
		return nil, err
	}
	signer, err := security.NewEventSigner(key, cert, opts...)
	if err != nil {
		return nil, err
	}
	return signer.SignDocument(ctx, doc)
}

func (s *Service) resolveUnsigned(ctx context.Context, req *SignRequest) (*event.Document, *storage.EventRecord, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("%w: empty sign request", ErrInvalidRequest)
	}
	if len(req.PFX) == 0 {
		return nil, nil, fmt.Errorf("%w: certificate file is required", ErrInvalidRequest)
	}

	if req.RecordID != "" {
		rec, err := s.store.GetEvent(ctx, req.RecordID)
		if err != nil {
			return nil, nil, err
		}
		tag := req.RootTag
		if tag == "" {
			tag = rec.RootTag
		}
		return &event.Document{
			EventType: rec.EventType,
			RootTag:   tag,
			ID:        rec.EventID,
			Group:     schema.Group(rec.Group),
			TpInsc:    rec.TpInsc,
			NrInsc:    rec.NrInsc,
			XML:       []byte(rec.XML),
		}, rec, nil
	}

	if len(req.XML) == 0 {
		return nil, nil, fmt.Errorf("%w: record id or event XML is required", ErrInvalidRequest)
	}
	doc, err := event.Parse(req.XML)
	if err != nil {
		return nil, nil, &security.SigningError{Tag: req.RootTag, Err: err}
	}
	if req.RootTag != "" {
		doc.RootTag = req.RootTag
	}
	return doc, nil, nil
}

// TransmitRequest names the signed document to send and carries the
// certificate used for mutual TLS. Either RecordID or SignedXML must be set.
type TransmitRequest struct {
	RecordID  string
	SignedXML []byte
	PFX       []byte
	Password  string
}

// Transmitted is the outcome of one round trip. On a transport failure it
// still carries the envelope that was sent.
type Transmitted struct {
	RecordID   string          `json:"recordId,omitempty"`
	EventID    string          `json:"eventId"`
	Group      schema.Group    `json:"grupo"`
	Endpoint   string          `json:"endpoint"`
	Envelope   string          `json:"envelope"`
	StatusCode int             `json:"statusCode,omitempty"`
	Response   string          `json:"response,omitempty"`
	Result     *message.Result `json:"result,omitempty"`
}

// Accepted reports whether the service took the lot.
func (t *Transmitted) Accepted() bool {
	return t.Result != nil && t.Result.Accepted()
}

// Transmit sends a signed queued record or raw signed XML.
func (s *Service) Transmit(ctx context.Context, req *TransmitRequest) (*Transmitted, error) {
	ctx, span := s.tracer.Start(ctx, "submission.Transmit")
	defer span.End()

	doc, rec, err := s.resolveSigned(ctx, req)
	if err != nil {
		return nil, spanError(span, err)
	}

	material, err := keystore.Extract(req.PFX, req.Password)
	if err != nil {
		s.recordFailure(ctx, rec, err)
		return nil, spanError(span, err)
	}
	defer material.Clear()

	return s.transmit(ctx, span, doc, rec, material)
}

// SignAndTransmit signs and sends in one call with a single extraction.
func (s *Service) SignAndTransmit(ctx context.Context, req *SignRequest) (*Signed, *Transmitted, error) {
	ctx, span := s.tracer.Start(ctx, "submission.SignAndTransmit")
	defer span.End()

	doc, rec, err := s.resolveUnsigned(ctx, req)
	if err != nil {
		return nil, nil, spanError(span, err)
	}

	material, err := keystore.Extract(req.PFX, req.Password)
	if err != nil {
		s.recordFailure(ctx, rec, err)
		return nil, nil, spanError(span, err)
	}
	defer material.Clear()

	signedDoc, err := s.sign(ctx, doc, material)
	if err != nil {
		s.recordFailure(ctx, rec, err)
		return nil, nil, spanError(span, err)
	}
	signed := &Signed{
		EventType:   signedDoc.EventType,
		RootTag:     signedDoc.RootTag,
		EventID:     signedDoc.ID,
		Group:       signedDoc.Group,
		XML:         string(signedDoc.XML),
		SignedAt:    signedDoc.SignedAt,
		Certificate: material.Describe(),
	}
	if rec != nil {
		signed.RecordID = rec.ID
		err := s.store.UpdateEventStatus(ctx, rec.ID, &storage.StatusUpdate{
			Status:    storage.StatusSigned,
			SignedXML: signed.XML,
		})
		if err != nil {
			return signed, nil, spanError(span, fmt.Errorf("updating event: %w", err))
		}
	}

	sent, err := s.transmit(ctx, span, signedDoc, rec, material)
	return signed, sent, err
}

func (s *Service) transmit(ctx context.Context, span trace.Span, doc *security.SignedDocument, rec *storage.EventRecord, material *keystore.Material) (*Transmitted, error) {
	sub, err := s.client.Transmit(ctx, doc, material)
	if err != nil {
		var terr *esocial.TransportError
		if errors.As(err, &terr) && sub != nil {
			out := transmitted(sub, rec)
			if rec != nil {
				_ = s.store.UpdateEventStatus(ctx, rec.ID, &storage.StatusUpdate{
					Status:   storage.StatusError,
					Envelope: out.Envelope,
					Error:    err.Error(),
				})
			}
			return out, spanError(span, err)
		}
		s.recordFailure(ctx, rec, err)
		return nil, spanError(span, err)
	}

	out := transmitted(sub, rec)
	span.SetAttributes(
		attribute.String("esocial.event_id", out.EventID),
		attribute.Bool("esocial.accepted", out.Accepted()),
	)

	if rec != nil {
		update := &storage.StatusUpdate{
			Status:       storage.StatusRejected,
			Envelope:     out.Envelope,
			Response:     out.Response,
			StatusCode:   out.StatusCode,
			ResponseCode: sub.Result.Code,
			Protocol:     sub.Result.Protocol,
		}
		if out.Accepted() {
			update.Status = storage.StatusSent
		} else {
			update.Error = rejection(sub)
		}
		if err := s.store.UpdateEventStatus(ctx, rec.ID, update); err != nil {
			return out, fmt.Errorf("updating event: %w", err)
		}
	}
	return out, nil
}

func (s *Service) resolveSigned(ctx context.Context, req *TransmitRequest) (*security.SignedDocument, *storage.EventRecord, error) {
	if req == nil {
		return nil, nil, fmt.Errorf("%w: empty transmit request", ErrInvalidRequest)
	}
	if len(req.PFX) == 0 {
		return nil, nil, fmt.Errorf("%w: certificate file is required", ErrInvalidRequest)
	}

	if req.RecordID != "" {
		rec, err := s.store.GetEvent(ctx, req.RecordID)
		if err != nil {
			return nil, nil, err
		}
		if rec.SignedXML == "" {
			return nil, nil, ErrNotSigned
		}
		return &security.SignedDocument{Document: event.Document{
			EventType: rec.EventType,
			RootTag:   rec.RootTag,
			ID:        rec.EventID,
			Group:     schema.Group(rec.Group),
			TpInsc:    rec.TpInsc,
			NrInsc:    rec.NrInsc,
			XML:       []byte(rec.SignedXML),
		}}, rec, nil
	}

	if len(req.SignedXML) == 0 {
		return nil, nil, fmt.Errorf("%w: record id or signed XML is required", ErrInvalidRequest)
	}
	return &security.SignedDocument{Document: event.Document{XML: req.SignedXML}}, nil, nil
}

// recordFailure marks a queued record as failed. Raw XML input has no
// record and nothing is written.
func (s *Service) recordFailure(ctx context.Context, rec *storage.EventRecord, cause error) {
	if rec == nil {
		return
	}
	err := s.store.UpdateEventStatus(ctx, rec.ID, &storage.StatusUpdate{
		Status: storage.StatusError,
		Error:  cause.Error(),
	})
	if err != nil {
		s.logger.Error("failed to record event failure",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()))
	}
}

// DescribeCertificate opens a PKCS#12 container and summarizes its
// certificate.
func (s *Service) DescribeCertificate(pfx []byte, password string) (keystore.CertificateInfo, error) {
	material, err := keystore.Extract(pfx, password)
	if err != nil {
		return keystore.CertificateInfo{}, err
	}
	defer material.Clear()
	return material.Describe(), nil
}

// GetEvent returns one queued record.
func (s *Service) GetEvent(ctx context.Context, id string) (*storage.EventRecord, error) {
	return s.store.GetEvent(ctx, id)
}

// ListEvents returns queued records newest first.
func (s *Service) ListEvents(ctx context.Context, filter *storage.EventFilter) ([]*storage.EventRecord, error) {
	return s.store.ListEvents(ctx, filter)
}

func transmitted(sub *esocial.Submission, rec *storage.EventRecord) *Transmitted {
	out := &Transmitted{
		EventID:    sub.EventID,
		Group:      sub.Group,
		Endpoint:   sub.Endpoint,
		Envelope:   string(sub.Envelope),
		StatusCode: sub.StatusCode,
		Response:   string(sub.Response),
		Result:     sub.Result,
	}
	if rec != nil {
		out.RecordID = rec.ID
	}
	return out
}

func rejection(sub *esocial.Submission) string {
	switch {
	case sub.Result.Code != "":
		return sub.Result.Code + " " + sub.Result.Description
	case sub.Result.Fault != "":
		return sub.Result.Fault
	default:
		return fmt.Sprintf("HTTP %d", sub.StatusCode)
	}
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
