// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package esocial transmits signed events to the eSocial lot reception web
service.

[Client.Transmit] takes a signed event and the certificate material that
signed it, then:

 1. strips the XML declaration and parses the document once, reading the
    event Id and the employer's tpInsc and nrInsc
 2. fails with a [MissingFieldError] before any network I/O when one of them
    is absent
 3. takes the lot group carried by the document, or derives it from the
    event's root tag
 4. builds the lot and the SOAP envelope
 5. posts it over mutual TLS, authenticated by the event's certificate

An HTTP error status is not an error: the service explains rejections in
the response body, which is returned and parsed. Only a missing response
produces a [TransportError]. Nothing is retried; a failed event must be
regenerated with a fresh Id.

	client, _ := esocial.NewClient(esocial.Config{Environment: esocial.EnvironmentRestricted})
	sub, err := client.Transmit(ctx, signed, material)
*/
package esocial
