// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport posts SOAP requests over mutually authenticated HTTPS.

The eSocial web services identify the employer by the TLS client
certificate, so every client is built around the certificate that signed
the submission:

	pair, _ := material.TLSCertificate()
	client := transport.NewHTTPSClient(&transport.HTTPSConfig{
	    MinTLSVersion: transport.TLS12,
	    Certificates:  []tls.Certificate{pair},
	})
	resp, err := client.Send(ctx, &transport.Request{
	    Endpoint:    endpoint,
	    Body:        envelope,
	    ContentType: transport.ContentTypeSOAP11,
	    SOAPAction:  action,
	})

Send only fails when no HTTP response was obtained. A response with an
error status is returned as is, because the service reports rejected lots
through the response body.

Clients keep no idle connections; a connection authenticated with one
employer's certificate is never reused for another request.

# References

  - TLS 1.3 RFC 8446: https://datatracker.ietf.org/doc/html/rfc8446
  - TLS 1.2 RFC 5246: https://datatracker.ietf.org/doc/html/rfc5246
  - SOAP 1.1: https://www.w3.org/TR/2000/NOTE-SOAP-20000508/
*/
package transport
