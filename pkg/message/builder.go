package message

import (
	"encoding/xml"
	"fmt"

	"github.com/sirosfoundation/go-esocial/pkg/event"
	"github.com/sirosfoundation/go-esocial/pkg/eventid"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
)

// BatchBuilder helps construct eSocial lots
type BatchBuilder struct {
	batch          *Batch
	transmitterSet bool
	errors         []error
}

// Option represents a functional option for BatchBuilder
type Option func(*BatchBuilder)

// NewBatch creates a lot builder with the given options
func NewBatch(opts ...Option) *BatchBuilder {
	b := &BatchBuilder{batch: &Batch{}}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// WithGroup sets the lot group
func WithGroup(g schema.Group) Option {
	return func(b *BatchBuilder) {
		b.batch.EnvioLoteEventos.Grupo = int(g)
	}
}

// WithEmployer sets the employer identification. Unless WithTransmitter is
// given the employer transmits its own lot.
func WithEmployer(tpInsc, nrInsc string) Option {
	return func(b *BatchBuilder) {
		b.batch.EnvioLoteEventos.IdeEmpregador = Inscription{TpInsc: tpInsc, NrInsc: eventid.Digits(nrInsc)}
	}
}

// WithTransmitter sets the transmitter identification
func WithTransmitter(tpInsc, nrInsc string) Option {
	return func(b *BatchBuilder) {
		b.batch.EnvioLoteEventos.IdeTransmissor = Inscription{TpInsc: tpInsc, NrInsc: eventid.Digits(nrInsc)}
		b.transmitterSet = true
	}
}

// AddEvent appends an event document. Any XML declaration is removed.
func (b *BatchBuilder) AddEvent(id string, eventXML []byte) *BatchBuilder {
	if id == "" {
		b.errors = append(b.errors, fmt.Errorf("event %d has no Id", len(b.batch.EnvioLoteEventos.Eventos.Evento)+1))
		return b
	}
	content := event.StripProlog(eventXML)
	if len(content) == 0 {
		b.errors = append(b.errors, fmt.Errorf("event %s is empty", id))
		return b
	}
	b.batch.EnvioLoteEventos.Eventos.Evento = append(b.batch.EnvioLoteEventos.Eventos.Evento, Evento{
		ID:      id,
		Content: content,
	})
	return b
}

// Build validates and returns the lot
func (b *BatchBuilder) Build() (*Batch, error) {
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	env := &b.batch.EnvioLoteEventos
	if !schema.Group(env.Grupo).Valid() {
		return nil, fmt.Errorf("invalid lot group %d", env.Grupo)
	}
	if env.IdeEmpregador.TpInsc == "" || env.IdeEmpregador.NrInsc == "" {
		return nil, fmt.Errorf("employer identification is required")
	}
	if !b.transmitterSet {
		env.IdeTransmissor = env.IdeEmpregador
	}

	n := len(env.Eventos.Evento)
	if n == 0 {
		return nil, fmt.Errorf("lot has no events")
	}
	if n > MaxEventsPerBatch {
		return nil, fmt.Errorf("lot has %d events, at most %d allowed", n, MaxEventsPerBatch)
	}
	seen := make(map[string]bool, n)
	for _, e := range env.Eventos.Evento {
		if seen[e.ID] {
			return nil, fmt.Errorf("duplicate event Id %s in lot", e.ID)
		}
		seen[e.ID] = true
	}

	return b.batch, nil
}

// Marshal serializes the lot without an XML declaration
func (b *Batch) Marshal() ([]byte, error) {
	out, err := xml.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lot: %w", err)
	}
	return out, nil
}

// PreviewEventID is the placeholder Id used in unsigned previews.
func PreviewEventID(tpInsc, nrInsc string) string {
	return "ID" + eventid.InscriptionType(tpInsc) + eventid.PadInscription(nrInsc) + "0000000000000000001"
}

// WrapInBatch builds the unsigned preview lot for one event. The employer
// is also the transmitter and the event carries a placeholder Id.
func WrapInBatch(eventXML []byte, group schema.Group, nrInsc, tpInsc string) ([]byte, error) {
	lot, err := NewBatch(
		WithGroup(group),
		WithEmployer(tpInsc, nrInsc),
	).AddEvent(PreviewEventID(tpInsc, nrInsc), eventXML).Build()
	if err != nil {
		return nil, err
	}
	out, err := lot.Marshal()
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// BuildEnvelope wraps a serialized lot in the SOAP EnviarLoteEventos request
func BuildEnvelope(lot []byte) ([]byte, error) {
	env := &Envelope{
		XmlnsSOAP: NsSOAP11,
		XmlnsLote: NsLote,
	}
	env.Body.EnviarLoteEventos.LoteEventos.Content = event.StripProlog(lot)

	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SOAP envelope: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}
