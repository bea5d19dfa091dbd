package security

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"

	"github.com/sirosfoundation/go-esocial/pkg/event"
)

// Algorithm identifiers used by the eSocial signature profile.
const (
	NamespaceDSig          = "http://www.w3.org/2000/09/xmldsig#"
	AlgorithmC14N          = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	AlgorithmEnveloped     = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
	AlgorithmSHA256        = "http://www.w3.org/2001/04/xmlenc#sha256"
	AlgorithmRSASHA256     = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256"
	referenceIDAttribute   = "Id"
	signatureValueTemplate = "placeholder"
	digestValueTemplate    = "placeholder"
)

// SignedDocument is an event document whose XML carries an enveloped
// signature. Identification and group are carried over from the unsigned
// document.
type SignedDocument struct {
	event.Document
	SignedAt time.Time
}

// EventSigner produces enveloped RSA-SHA256 signatures over event elements.
type EventSigner struct {
	key       *rsa.PrivateKey
	cert      *x509.Certificate
	chain     []*x509.Certificate
	validator CertificateValidator
	now       func() time.Time
}

// SignerOption configures an EventSigner.
type SignerOption func(*EventSigner)

// WithCertificateValidator checks the signing certificate before every
// SignDocument call.
func WithCertificateValidator(v CertificateValidator) SignerOption {
	return func(s *EventSigner) {
		s.validator = v
	}
}

// WithChain supplies intermediate certificates for validation.
func WithChain(chain []*x509.Certificate) SignerOption {
	return func(s *EventSigner) {
		s.chain = chain
	}
}

// WithSignerClock overrides the clock used for SignedAt.
func WithSignerClock(now func() time.Time) SignerOption {
	return func(s *EventSigner) {
		s.now = now
	}
}

// NewEventSigner creates a signer for an RSA key and its certificate.
func NewEventSigner(key crypto.Signer, cert *x509.Certificate, opts ...SignerOption) (*EventSigner, error) {
	if key == nil {
		return nil, &SigningError{Err: fmt.Errorf("private key is required")}
	}
	if cert == nil {
		return nil, &SigningError{Err: fmt.Errorf("certificate is required")}
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, &SigningError{Err: fmt.Errorf("RSA-SHA256 requires an RSA private key, got %T", key)}
	}
	if !rsaKey.PublicKey.Equal(cert.PublicKey) {
		return nil, &SigningError{Err: fmt.Errorf("private key does not match certificate")}
	}

	s := &EventSigner{
		key:  rsaKey,
		cert: cert,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Certificate returns the signing certificate.
func (s *EventSigner) Certificate() *x509.Certificate {
	return s.cert
}

// CheckCertificate runs the configured validator, if any.
func (s *EventSigner) CheckCertificate(ctx context.Context) error {
	if s.validator == nil {
		return nil
	}
	return s.validator.Validate(ctx, s.cert, s.chain)
}

// SignDocument validates the certificate and signs the document's root
// event element.
func (s *EventSigner) SignDocument(ctx context.Context, doc *event.Document) (*SignedDocument, error) {
	if err := s.CheckCertificate(ctx); err != nil {
		return nil, &SigningError{Tag: doc.RootTag, Err: err}
	}
	signed, err := s.Sign(doc.XML, doc.RootTag)
	if err != nil {
		return nil, err
	}

	out := &SignedDocument{Document: *doc, SignedAt: s.now()}
	out.XML = signed
	return out, nil
}

// Sign signs the first element whose local name is tag. The element must
// carry an Id attribute. The Signature is appended after it, as the last
// child of its parent.
func (s *EventSigner) Sign(xml []byte, tag string) ([]byte, error) {
	tag = localName(tag)
	if tag == "" {
		return nil, &SigningError{Err: fmt.Errorf("%w: empty tag name", ErrElementNotFound)}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xml); err != nil {
		return nil, &SigningError{Tag: tag, Err: fmt.Errorf("failed to parse XML: %w", err)}
	}

	target := findElement(doc, tag)
	if target == nil {
		return nil, &SigningError{Tag: tag, Err: ErrElementNotFound}
	}
	id := target.SelectAttrValue(referenceIDAttribute, "")
	if id == "" {
		return nil, &SigningError{Tag: tag, Err: ErrMissingID}
	}
	host := signatureHost(target)
	if host.FindElement("./Signature") != nil || target.FindElement("./Signature") != nil {
		return nil, &SigningError{Tag: tag, Err: ErrAlreadySigned}
	}

	s.appendSignatureTemplate(host, id)

	xmlStr, err := doc.WriteToString()
	if err != nil {
		return nil, &SigningError{Tag: tag, Err: fmt.Errorf("failed to write XML: %w", err)}
	}

	signer, err := signedxml.NewSigner(xmlStr)
	if err != nil {
		return nil, &SigningError{Tag: tag, Err: fmt.Errorf("failed to create signer: %w", err)}
	}
	signer.SetReferenceIDAttribute(referenceIDAttribute)

	signedXML, err := signer.Sign(s.key)
	if err != nil {
		return nil, &SigningError{Tag: tag, Err: fmt.Errorf("failed to sign: %w", err)}
	}
	return []byte(signedXML), nil
}

// signatureHost is the element the Signature is appended to: the parent of
// the event element (the eSocial root), or the event element itself when it
// is the document root.
func signatureHost(target *etree.Element) *etree.Element {
	if parent := target.Parent(); parent != nil && parent.Tag != "" {
		return parent
	}
	return target
}

func (s *EventSigner) appendSignatureTemplate(host *etree.Element, id string) {
	sig := host.CreateElement("Signature")
	sig.CreateAttr("xmlns", NamespaceDSig)

	signedInfo := sig.CreateElement("SignedInfo")
	signedInfo.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", AlgorithmC14N)
	signedInfo.CreateElement("SignatureMethod").CreateAttr("Algorithm", AlgorithmRSASHA256)

	ref := signedInfo.CreateElement("Reference")
	ref.CreateAttr("URI", "#"+id)
	transforms := ref.CreateElement("Transforms")
	transforms.CreateElement("Transform").CreateAttr("Algorithm", AlgorithmEnveloped)
	transforms.CreateElement("Transform").CreateAttr("Algorithm", AlgorithmC14N)
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", AlgorithmSHA256)
	ref.CreateElement("DigestValue").SetText(digestValueTemplate)

	sig.CreateElement("SignatureValue").SetText(signatureValueTemplate)

	x509Data := sig.CreateElement("KeyInfo").CreateElement("X509Data")
	x509Data.CreateElement("X509Certificate").SetText(base64.StdEncoding.EncodeToString(s.cert.Raw))
}

// Verify checks an enveloped signature against the certificate embedded
// in its KeyInfo and returns that certificate. Trust in the certificate is
// not evaluated; pass it to a CertificateValidator for that.
func Verify(xml []byte) (*x509.Certificate, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xml); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	certEl := doc.FindElement("//Signature/KeyInfo/X509Data/X509Certificate")
	if certEl == nil {
		return nil, fmt.Errorf("no X509Certificate in signature")
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(certEl.Text()), ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	if err := VerifyWithCertificate(xml, cert); err != nil {
		return nil, err
	}
	return cert, nil
}

// VerifyWithCertificate checks an enveloped signature against cert.
func VerifyWithCertificate(xml []byte, cert *x509.Certificate) error {
	validator, err := signedxml.NewValidator(string(xml))
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}
	validator.Certificates = append(validator.Certificates, *cert)
	validator.SetReferenceIDAttribute(referenceIDAttribute)

	if _, err := validator.ValidateReferences(); err != nil {
		return fmt.Errorf("signature validation failed: %w", err)
	}
	return nil
}

func findElement(doc *etree.Document, tag string) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	if root.Tag == tag {
		return root
	}
	return root.FindElement(".//" + tag)
}

func localName(tag string) string {
	tag = strings.TrimSpace(tag)
	if i := strings.LastIndex(tag, ":"); i >= 0 {
		return tag[i+1:]
	}
	return tag
}
