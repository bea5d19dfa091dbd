// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security signs and verifies eSocial event documents.

Every event is signed with an enveloped XML-DSig signature over the element
carrying the event Id:

	key, cert, err := material.SigningPair()
	signer, err := security.NewEventSigner(key, cert)
	signed, err := signer.SignDocument(ctx, doc)

# Signature profile

  - Reference to the Id-bearing event element (evtInfoEmpregador, evtRemun, ...)
  - Transforms: enveloped-signature, then Canonical XML 1.0 without comments
  - Digest: SHA-256
  - Signature method: RSA-SHA256
  - Canonicalization of SignedInfo: Canonical XML 1.0 without comments
  - KeyInfo: X509Data/X509Certificate with the signer certificate

The Signature element is appended as the last child of the eSocial root,
after the event element it references.

# Certificate checks

Before signing, a [CertificateValidator] can reject certificates outside
their validity window, certificates that do not chain to configured roots,
and (through a [RevocationChecker]) revoked certificates:

	validator := security.NewDefaultCertificateValidator(
	    security.WithRevocationChecker(security.NewOCSPChecker(nil)),
	)
	signer, err := security.NewEventSigner(key, cert,
	    security.WithCertificateValidator(validator))

# References

  - XML Signature: https://www.w3.org/TR/xmldsig-core1/
  - Canonical XML 1.0: https://www.w3.org/TR/2001/REC-xml-c14n-20010315
  - eSocial developer manual (Manual de Orientação do Desenvolvedor), signature section
*/
package security
