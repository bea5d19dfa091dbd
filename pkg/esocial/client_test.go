package esocial

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-esocial/internal/testpki"
	"github.com/sirosfoundation/go-esocial/pkg/event"
	"github.com/sirosfoundation/go-esocial/pkg/keystore"
	"github.com/sirosfoundation/go-esocial/pkg/message"
	"github.com/sirosfoundation/go-esocial/pkg/reliability"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
	"github.com/sirosfoundation/go-esocial/pkg/security"
	"github.com/sirosfoundation/go-esocial/pkg/transport"
)

const (
	remunID  = "ID1123456780001902024030514070900007"
	remunXML = `<?xml version="1.0" encoding="UTF-8"?>
<eSocial xmlns="http://www.esocial.gov.br/schema/evt/evtRemun/v_S_01_03_00"><evtRemun Id="` + remunID + `"><ideEvento><indRetif>1</indRetif><perApur>2024-02</perApur><tpAmb>2</tpAmb><procEmi>1</procEmi><verProc>1.0</verProc></ideEvento><ideEmpregador><tpInsc>1</tpInsc><nrInsc>12345678000190</nrInsc></ideEmpregador><ideTrabalhador><cpfTrab>12345678909</cpfTrab></ideTrabalhador></evtRemun></eSocial>`

	acceptedReply = `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><EnviarLoteEventosResponse xmlns="http://www.esocial.gov.br/servicos/empregador/lote/eventos/envio/v1_1_0"><EnviarLoteEventosResult><eSocial xmlns="http://www.esocial.gov.br/schema/lote/eventos/envio/retornoEnvio/v1_1_0"><retornoEnvioLoteEventos><status><cdResposta>201</cdResposta><descResposta>Lote Recebido com Sucesso.</descResposta></status><dadosRecepcaoLote><dhRecepcao>2024-03-05T14:07:10</dhRecepcao><protocoloEnvio>1.2.202403.0000000000000000001</protocoloEnvio></dadosRecepcaoLote></retornoEnvioLoteEventos></eSocial></EnviarLoteEventosResult></EnviarLoteEventosResponse></s:Body></s:Envelope>`
)

type fakeSender struct {
	calls  int
	config *transport.HTTPSConfig
	req    *transport.Request
	resp   *transport.Response
	err    error
}

func (f *fakeSender) Send(_ context.Context, r *transport.Request) (*transport.Response, error) {
	f.calls++
	f.req = r
	return f.resp, f.err
}

func (f *fakeSender) factory(cfg *transport.HTTPSConfig) Sender {
	f.config = cfg
	return f
}

func signedEvent(t *testing.T, xml, tag string) ([]byte, *keystore.Material) {
	t.Helper()
	id := testpki.NewIdentity(t, "EMPRESA TESTE:12345678000190")
	signer, err := security.NewEventSigner(id.Key, id.Certificate)
	require.NoError(t, err)
	signed, err := signer.Sign([]byte(xml), tag)
	require.NoError(t, err)

	material, err := keystore.Extract(id.PFX(t), testpki.Password)
	require.NoError(t, err)
	return signed, material
}

func TestTransmit_PeriodicGroupFromRootTag(t *testing.T) {
	signed, material := signedEvent(t, remunXML, "evtRemun")
	sender := &fakeSender{resp: &transport.Response{StatusCode: http.StatusOK, Body: []byte(acceptedReply)}}

	client, err := NewClient(Config{}, WithSenderFactory(sender.factory))
	require.NoError(t, err)

	sub, err := client.TransmitXML(context.Background(), signed, material)
	require.NoError(t, err)
	assert.Equal(t, schema.GroupPeriodic, sub.Group)
	assert.Equal(t, remunID, sub.EventID)
	assert.Equal(t, EndpointRestricted, sub.Endpoint)

	require.Equal(t, 1, sender.calls)
	assert.Equal(t, EndpointRestricted, sender.req.Endpoint)
	assert.Equal(t, transport.ContentTypeSOAP11, sender.req.ContentType)
	assert.Equal(t, message.SOAPActionEnviarLoteEventos, sender.req.SOAPAction)
	require.Len(t, sender.config.Certificates, 1)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(sender.req.Body))
	envio := doc.FindElement("//envioLoteEventos")
	require.NotNil(t, envio)
	assert.Equal(t, "3", envio.SelectAttrValue("grupo", ""))
	assert.Equal(t, "12345678000190", doc.FindElement("//ideEmpregador/nrInsc").Text())

	evento := doc.FindElement("//eventos/evento")
	require.NotNil(t, evento)
	assert.Equal(t, remunID, evento.SelectAttrValue("Id", ""))

	assert.Contains(t, string(sub.Envelope), string(event.StripProlog(signed)), "signed event is embedded unchanged")

	require.NotNil(t, sub.Result)
	assert.True(t, sub.Result.Accepted())
	assert.Equal(t, "201", sub.Result.Code)
	assert.Equal(t, "1.2.202403.0000000000000000001", sub.Result.Protocol)
}

func TestTransmit_CarriedGroupWins(t *testing.T) {
	signed, material := signedEvent(t, remunXML, "evtRemun")
	sender := &fakeSender{resp: &transport.Response{StatusCode: http.StatusOK, Body: []byte(acceptedReply)}}
	client, err := NewClient(Config{Environment: EnvironmentProduction}, WithSenderFactory(sender.factory))
	require.NoError(t, err)

	doc := &security.SignedDocument{Document: event.Document{XML: signed, Group: schema.GroupNonPeriodic}}
	sub, err := client.Transmit(context.Background(), doc, material)
	require.NoError(t, err)
	assert.Equal(t, schema.GroupNonPeriodic, sub.Group)
	assert.Equal(t, EndpointProduction, sender.req.Endpoint)
}

func TestTransmit_MissingFieldsFailBeforeIO(t *testing.T) {
	_, material := signedEvent(t, remunXML, "evtRemun")

	tests := []struct {
		name  string
		xml   string
		field string
	}{
		{
			name:  "no tpInsc",
			xml:   strings.Replace(remunXML, "<tpInsc>1</tpInsc>", "", 1),
			field: "tpInsc",
		},
		{
			name:  "no nrInsc",
			xml:   strings.Replace(remunXML, "<nrInsc>12345678000190</nrInsc>", "", 1),
			field: "nrInsc",
		},
		{
			name:  "no ideEmpregador",
			xml:   strings.Replace(remunXML, "<ideEmpregador><tpInsc>1</tpInsc><nrInsc>12345678000190</nrInsc></ideEmpregador>", "", 1),
			field: "tpInsc",
		},
		{
			name:  "no Id",
			xml:   strings.Replace(remunXML, ` Id="`+remunID+`"`, "", 1),
			field: "Id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			client, err := NewClient(Config{}, WithSenderFactory(sender.factory))
			require.NoError(t, err)

			sub, err := client.TransmitXML(context.Background(), []byte(tt.xml), material)
			require.Error(t, err)
			assert.Nil(t, sub)

			var missing *MissingFieldError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.field, missing.Field)
			assert.Zero(t, sender.calls, "no request may be sent")
			assert.Nil(t, sender.config, "no sender may be built")
		})
	}
}

func TestTransmit_MalformedDocument(t *testing.T) {
	_, material := signedEvent(t, remunXML, "evtRemun")
	sender := &fakeSender{}
	client, err := NewClient(Config{}, WithSenderFactory(sender.factory))
	require.NoError(t, err)

	_, err = client.TransmitXML(context.Background(), []byte("<eSocial><evtRemun"), material)
	assert.ErrorIs(t, err, ErrMalformedDocument)
	assert.Zero(t, sender.calls)
}

func TestTransmit_RequiresMaterial(t *testing.T) {
	signed, _ := signedEvent(t, remunXML, "evtRemun")
	sender := &fakeSender{}
	client, err := NewClient(Config{}, WithSenderFactory(sender.factory))
	require.NoError(t, err)

	_, err = client.TransmitXML(context.Background(), signed, nil)
	assert.Error(t, err)
	assert.Zero(t, sender.calls)
}

func TestTransmit_ErrorStatusIsAResponse(t *testing.T) {
	signed, material := signedEvent(t, remunXML, "evtRemun")
	fault := `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><s:Fault><faultcode>s:Client</faultcode><faultstring>Certificado invalido</faultstring></s:Fault></s:Body></s:Envelope>`
	sender := &fakeSender{resp: &transport.Response{StatusCode: http.StatusInternalServerError, Body: []byte(fault)}}

	tracker := reliability.NewTracker(0)
	defer tracker.Close()
	client, err := NewClient(Config{}, WithSenderFactory(sender.factory), WithTracker(tracker))
	require.NoError(t, err)

	sub, err := client.TransmitXML(context.Background(), signed, material)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, sub.StatusCode)
	assert.Equal(t, fault, string(sub.Response))
	assert.Equal(t, "Certificado invalido", sub.Result.Fault)
	assert.False(t, sub.Result.Accepted())

	rec, ok := tracker.Get(remunID)
	require.True(t, ok)
	assert.Equal(t, reliability.StateRejected, rec.State)
}

func TestTransmit_TruncatedResponse(t *testing.T) {
	signed, material := signedEvent(t, remunXML, "evtRemun")
	sender := &fakeSender{resp: &transport.Response{StatusCode: http.StatusOK, Body: []byte("<s:Envelope"), Truncated: true}}

	client, err := NewClient(Config{MaxResponseBytes: 11}, WithSenderFactory(sender.factory))
	require.NoError(t, err)

	sub, err := client.TransmitXML(context.Background(), signed, material)
	require.NoError(t, err)
	require.NotNil(t, sender.config)
	assert.Equal(t, int64(11), sender.config.MaxResponseBytes)
	assert.True(t, sub.ResponseTruncated)
	assert.Equal(t, "<s:Envelope", string(sub.Response))
	assert.False(t, sub.Result.Accepted())
}

func TestTransmit_NetworkFailure(t *testing.T) {
	signed, material := signedEvent(t, remunXML, "evtRemun")
	sender := &fakeSender{err: errors.New("connection refused")}

	tracker := reliability.NewTracker(0)
	defer tracker.Close()
	client, err := NewClient(Config{Endpoint: "https://127.0.0.1:1/ws"},
		WithSenderFactory(sender.factory), WithTracker(tracker))
	require.NoError(t, err)

	sub, err := client.TransmitXML(context.Background(), signed, material)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "https://127.0.0.1:1/ws", terr.Endpoint)
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.Envelope)
	assert.Nil(t, sub.Result)

	// A failed Id may have reached the service and is never resent.
	_, err = client.TransmitXML(context.Background(), signed, material)
	assert.ErrorIs(t, err, reliability.ErrDuplicateID)
	assert.Equal(t, 1, sender.calls)
}

func TestTransmit_DuplicateAcceptedID(t *testing.T) {
	signed, material := signedEvent(t, remunXML, "evtRemun")
	sender := &fakeSender{resp: &transport.Response{StatusCode: http.StatusOK, Body: []byte(acceptedReply)}}

	tracker := reliability.NewTracker(0)
	defer tracker.Close()
	client, err := NewClient(Config{}, WithSenderFactory(sender.factory), WithTracker(tracker))
	require.NoError(t, err)

	_, err = client.TransmitXML(context.Background(), signed, material)
	require.NoError(t, err)
	rec, _ := tracker.Get(remunID)
	assert.Equal(t, reliability.StateSent, rec.State)
	assert.Equal(t, "1.2.202403.0000000000000000001", rec.Protocol)

	_, err = client.TransmitXML(context.Background(), signed, material)
	assert.ErrorIs(t, err, reliability.ErrDuplicateID)
	assert.Equal(t, 1, sender.calls)
}

func TestTransmit_MutualTLS(t *testing.T) {
	signed, material := signedEvent(t, remunXML, "evtRemun")

	var (
		hits atomic.Int32
		peer atomic.Pointer[x509.Certificate]
		body atomic.Pointer[string]
	)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		b, _ := io.ReadAll(r.Body)
		s := string(b)
		body.Store(&s)
		if len(r.TLS.PeerCertificates) > 0 {
			peer.Store(r.TLS.PeerCertificates[0])
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = io.WriteString(w, acceptedReply)
	}))
	srv.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	srv.StartTLS()
	defer srv.Close()

	roots := x509.NewCertPool()
	roots.AddCert(srv.Certificate())
	client, err := NewClient(Config{Endpoint: srv.URL, RootCAs: roots})
	require.NoError(t, err)

	sub, err := client.TransmitXML(context.Background(), signed, material)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.True(t, sub.Result.Accepted())
	require.NotNil(t, peer.Load())
	assert.True(t, peer.Load().Equal(material.Certificate))
	assert.Contains(t, *body.Load(), "<esocial:EnviarLoteEventos>")
}

func TestNewClient_Environment(t *testing.T) {
	client, err := NewClient(Config{})
	require.NoError(t, err)
	assert.Equal(t, EnvironmentRestricted, client.Environment())
	assert.Equal(t, EndpointRestricted, client.Endpoint())

	client, err = NewClient(Config{Environment: EnvironmentProduction})
	require.NoError(t, err)
	assert.Equal(t, EndpointProduction, client.Endpoint())

	_, err = NewClient(Config{Environment: "staging"})
	assert.Error(t, err)
}

func TestParseEnvironment(t *testing.T) {
	tests := []struct {
		in   string
		want Environment
		ok   bool
	}{
		{"production", EnvironmentProduction, true},
		{"Producao", EnvironmentProduction, true},
		{"1", EnvironmentProduction, true},
		{"", EnvironmentRestricted, true},
		{"producaorestrita", EnvironmentRestricted, true},
		{"2", EnvironmentRestricted, true},
		{"staging", "", false},
	}
	for _, tt := range tests {
		got, err := ParseEnvironment(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
	assert.Equal(t, "1", EnvironmentProduction.TpAmb())
	assert.Equal(t, "2", EnvironmentRestricted.TpAmb())
}
