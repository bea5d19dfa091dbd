package message

import "encoding/xml"

// Namespace constants for eSocial lots
const (
	NsSOAP11 = "http://schemas.xmlsoap.org/soap/envelope/"
	NsLote   = "http://www.esocial.gov.br/schema/lote/eventos/envio/v1_1_1"
)

// SOAPActionEnviarLoteEventos is the SOAPAction of the lot submission operation.
const SOAPActionEnviarLoteEventos = "http://www.esocial.gov.br/servicos/empregador/lote/eventos/envio/v1_1_0/ServicoEnviarLoteEventos/EnviarLoteEventos"

// MaxEventsPerBatch is the largest number of events one lot may carry.
const MaxEventsPerBatch = 50

// Batch represents the eSocial lot document
type Batch struct {
	XMLName          xml.Name         `xml:"http://www.esocial.gov.br/schema/lote/eventos/envio/v1_1_1 eSocial"`
	EnvioLoteEventos EnvioLoteEventos `xml:"envioLoteEventos"`
}

// EnvioLoteEventos carries the lot group, the parties and the events
type EnvioLoteEventos struct {
	Grupo          int         `xml:"grupo,attr"`
	IdeEmpregador  Inscription `xml:"ideEmpregador"`
	IdeTransmissor Inscription `xml:"ideTransmissor"`
	Eventos        Eventos     `xml:"eventos"`
}

// Inscription identifies an employer or transmitter
type Inscription struct {
	TpInsc string `xml:"tpInsc"`
	NrInsc string `xml:"nrInsc"`
}

// Eventos is the event list of a lot
type Eventos struct {
	Evento []Evento `xml:"evento"`
}

// Evento wraps one event document. Content is written verbatim.
type Evento struct {
	ID      string `xml:"Id,attr"`
	Content []byte `xml:",innerxml"`
}

// Envelope represents the SOAP 1.1 EnviarLoteEventos request
type Envelope struct {
	XMLName   xml.Name `xml:"soap:Envelope"`
	XmlnsSOAP string   `xml:"xmlns:soap,attr"`
	XmlnsLote string   `xml:"xmlns:esocial,attr"`
	Body      SOAPBody `xml:"soap:Body"`
}

// SOAPBody holds the operation element
type SOAPBody struct {
	EnviarLoteEventos EnviarLoteEventos `xml:"esocial:EnviarLoteEventos"`
}

// EnviarLoteEventos is the lot submission operation
type EnviarLoteEventos struct {
	LoteEventos LoteEventos `xml:"esocial:loteEventos"`
}

// LoteEventos holds the lot document. Content is written verbatim.
type LoteEventos struct {
	Content []byte `xml:",innerxml"`
}
