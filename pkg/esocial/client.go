package esocial

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sirosfoundation/go-esocial/pkg/event"
	"github.com/sirosfoundation/go-esocial/pkg/keystore"
	"github.com/sirosfoundation/go-esocial/pkg/message"
	"github.com/sirosfoundation/go-esocial/pkg/reliability"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
	"github.com/sirosfoundation/go-esocial/pkg/security"
	"github.com/sirosfoundation/go-esocial/pkg/transport"
)

const tracerName = "github.com/sirosfoundation/go-esocial/pkg/esocial"

// Config configures a Client.
type Config struct {
	Environment Environment
	// Endpoint overrides the environment's URL.
	Endpoint   string
	SOAPAction string
	Timeout    time.Duration
	RootCAs    *x509.CertPool
	// InsecureSkipVerify disables server certificate checks. Test only.
	InsecureSkipVerify bool
	// MaxResponseBytes caps the stored response body. Zero uses
	// transport.DefaultMaxResponseBytes.
	MaxResponseBytes int64
}

// Sender posts one request. *transport.HTTPSClient implements it.
type Sender interface {
	Send(ctx context.Context, r *transport.Request) (*transport.Response, error)
}

// SenderFactory builds the Sender for one transmission. The config carries
// the caller's client certificate, so senders are never shared.
type SenderFactory func(*transport.HTTPSConfig) Sender

func defaultSenderFactory(cfg *transport.HTTPSConfig) Sender {
	return transport.NewHTTPSClient(cfg)
}

// Client transmits signed events.
type Client struct {
	config    Config
	endpoint  string
	logger    *slog.Logger
	newSender SenderFactory
	tracker   *reliability.Tracker
	tracer    trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSenderFactory replaces the HTTPS sender.
func WithSenderFactory(f SenderFactory) ClientOption {
	return func(c *Client) {
		c.newSender = f
	}
}

// WithTracker refuses to transmit an Id twice.
func WithTracker(t *reliability.Tracker) ClientOption {
	return func(c *Client) {
		c.tracker = t
	}
}

// NewClient creates a Client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.Environment == "" {
		cfg.Environment = EnvironmentRestricted
	}
	if cfg.Environment != EnvironmentProduction && cfg.Environment != EnvironmentRestricted {
		return nil, fmt.Errorf("unknown eSocial environment %q", cfg.Environment)
	}
	if cfg.SOAPAction == "" {
		cfg.SOAPAction = message.SOAPActionEnviarLoteEventos
	}

	c := &Client{
		config:    cfg,
		endpoint:  cfg.Endpoint,
		newSender: defaultSenderFactory,
		tracer:    otel.Tracer(tracerName),
	}
	if c.endpoint == "" {
		c.endpoint = cfg.Environment.Endpoint()
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Endpoint returns the URL events are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Environment returns the configured environment.
func (c *Client) Environment() Environment {
	return c.config.Environment
}

// Submission describes one transmission.
type Submission struct {
	EventID    string
	Group      schema.Group
	TpInsc     string
	NrInsc     string
	Endpoint   string
	Batch      []byte
	Envelope   []byte
	StatusCode int
	Response   []byte
	// ResponseTruncated is set when Response was cut to the size cap.
	ResponseTruncated bool
	Result            *message.Result
}

// Transmit sends a signed event. The lot group carried by doc is used when
// set. On a TransportError the returned Submission still holds the
// envelope that was sent.
func (c *Client) Transmit(ctx context.Context, doc *security.SignedDocument, material *keystore.Material) (*Submission, error) {
	if doc == nil {
		return nil, fmt.Errorf("signed document is required")
	}
	return c.transmit(ctx, doc.XML, doc.Group, material)
}

// TransmitXML sends signed event XML whose lot group is derived from its
// root tag.
func (c *Client) TransmitXML(ctx context.Context, signedXML []byte, material *keystore.Material) (*Submission, error) {
	return c.transmit(ctx, signedXML, 0, material)
}

func (c *Client) transmit(ctx context.Context, signedXML []byte, group schema.Group, material *keystore.Material) (*Submission, error) {
	ctx, span := c.tracer.Start(ctx, "esocial.Transmit", trace.WithAttributes(
		attribute.String("esocial.endpoint", c.endpoint),
	))
	defer span.End()

	sub, err := c.prepare(signedXML, group)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("esocial.event_id", sub.EventID),
		attribute.Int("esocial.grupo", int(sub.Group)),
	)

	if material == nil || material.Certificate == nil {
		err := errors.New("certificate material is required")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	pair, err := material.TLSCertificate()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if c.tracker != nil {
		if err := c.tracker.Reserve(sub.EventID, signedXML); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	logger := c.logger.With(slog.String("event_id", sub.EventID), slog.Int("grupo", int(sub.Group)))
	logger.Info("transmitting event", slog.String("endpoint", c.endpoint))
	logger.Debug("SOAP envelope", slog.String("xml", string(sub.Envelope)))

	sender := c.newSender(&transport.HTTPSConfig{
		Certificates:       []tls.Certificate{pair},
		RootCAs:            c.config.RootCAs,
		InsecureSkipVerify: c.config.InsecureSkipVerify,
		Timeout:            c.config.Timeout,
		MaxResponseBytes:   c.config.MaxResponseBytes,
	})
	resp, err := sender.Send(ctx, &transport.Request{
		Endpoint:    c.endpoint,
		Body:        sub.Envelope,
		ContentType: transport.ContentTypeSOAP11,
		SOAPAction:  c.config.SOAPAction,
	})
	if err != nil {
		terr := &TransportError{Endpoint: c.endpoint, Err: err}
		if c.tracker != nil {
			_ = c.tracker.MarkFailed(sub.EventID, err)
		}
		logger.Error("transmission failed", slog.String("error", err.Error()))
		span.RecordError(terr)
		span.SetStatus(codes.Error, terr.Error())
		return sub, terr
	}

	sub.StatusCode = resp.StatusCode
	sub.Response = resp.Body
	sub.ResponseTruncated = resp.Truncated
	if resp.Truncated {
		logger.Warn("response body truncated", slog.Int("bytes", len(resp.Body)))
	}
	sub.Result = message.ParseResponse(resp.Body)
	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("esocial.cd_resposta", sub.Result.Code),
	)

	if resp.OK() && sub.Result.Accepted() {
		logger.Info("lot accepted",
			slog.String("protocol", sub.Result.Protocol),
			slog.String("cd_resposta", sub.Result.Code))
		if c.tracker != nil {
			_ = c.tracker.MarkSent(sub.EventID, sub.Result.Protocol)
		}
	} else {
		logger.Warn("lot not accepted",
			slog.Int("status", resp.StatusCode),
			slog.String("cd_resposta", sub.Result.Code),
			slog.String("desc_resposta", sub.Result.Description))
		if c.tracker != nil {
			_ = c.tracker.MarkRejected(sub.EventID, rejectionReason(resp, sub.Result))
		}
	}
	return sub, nil
}

// prepare reads the identification from the signed document and builds the
// lot and envelope. It performs no I/O.
func (c *Client) prepare(signedXML []byte, group schema.Group) (*Submission, error) {
	clean := event.StripProlog(signedXML)

	info, err := event.Inspect(clean)
	if errors.Is(err, event.ErrNoEventElement) {
		return nil, &MissingFieldError{Field: "Id"}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	switch {
	case info.ID == "":
		return nil, &MissingFieldError{Field: "Id"}
	case info.TpInsc == "":
		return nil, &MissingFieldError{Field: "tpInsc"}
	case info.NrInsc == "":
		return nil, &MissingFieldError{Field: "nrInsc"}
	}

	if !group.Valid() {
		group = schema.GroupForRootTag(info.RootTag)
	}

	lot, err := message.NewBatch(
		message.WithGroup(group),
		message.WithEmployer(info.TpInsc, info.NrInsc),
	).AddEvent(info.ID, clean).Build()
	if err != nil {
		return nil, err
	}
	batch, err := lot.Marshal()
	if err != nil {
		return nil, err
	}
	envelope, err := message.BuildEnvelope(batch)
	if err != nil {
		return nil, err
	}

	return &Submission{
		EventID:  info.ID,
		Group:    group,
		TpInsc:   info.TpInsc,
		NrInsc:   info.NrInsc,
		Endpoint: c.endpoint,
		Batch:    batch,
		Envelope: envelope,
	}, nil
}

func rejectionReason(resp *transport.Response, res *message.Result) string {
	switch {
	case res.Code != "":
		return res.Code + " " + res.Description
	case res.Fault != "":
		return res.Fault
	default:
		return fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
}
