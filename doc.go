// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package goesocial builds, signs and transmits events of the Brazilian
eSocial system.

# Overview

go-esocial turns form data into eSocial event XML, signs the event with the
employer's ICP-Brasil certificate (supplied per request as a PKCS#12
container), wraps it in an envioLoteEventos lot, and posts the lot to the
reception web service over mutually authenticated TLS.

# Package Structure

	github.com/sirosfoundation/go-esocial/pkg/formdata    - Ordered nested form data and dot-path keys
	github.com/sirosfoundation/go-esocial/pkg/schema      - Event schema catalog and group table
	github.com/sirosfoundation/go-esocial/pkg/eventid     - Event Id generation
	github.com/sirosfoundation/go-esocial/pkg/event       - Event XML serialization and inspection
	github.com/sirosfoundation/go-esocial/pkg/message     - Lots, SOAP envelope and response parsing
	github.com/sirosfoundation/go-esocial/pkg/keystore    - PKCS#12 extraction
	github.com/sirosfoundation/go-esocial/pkg/security    - Enveloped XML-DSig and certificate checks
	github.com/sirosfoundation/go-esocial/pkg/transport   - Mutual TLS HTTPS client
	github.com/sirosfoundation/go-esocial/pkg/reliability - Duplicate Id protection
	github.com/sirosfoundation/go-esocial/pkg/esocial     - Transmission client

# Quick Start

	catalog, _ := schema.DefaultCatalog()
	registry, _ := event.NewRegistry(catalog, nil)
	doc, err := registry.Generate("S-1000", data)

	material, err := keystore.Extract(pfx, password)
	defer material.Clear()
	key, cert, err := material.SigningPair()
	signer, err := security.NewEventSigner(key, cert)
	signed, err := signer.SignDocument(ctx, doc)

	client, err := esocial.NewClient(esocial.Config{Environment: esocial.EnvironmentRestricted})
	sub, err := client.Transmit(ctx, signed, material)
	if sub.Result.Accepted() {
	    fmt.Println(sub.Result.Protocol)
	}

# Signatures

  - RSA-SHA256 over the event element referenced by its Id attribute
  - Enveloped signature transform followed by inclusive C14N 1.0
  - SHA-256 digest; the signing certificate is embedded in KeyInfo

# References

  - eSocial documentation: https://www.gov.br/esocial/pt-br/documentacao-tecnica
  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core1/

# License

BSD-2-Clause License
*/
package goesocial
