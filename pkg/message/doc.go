// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message builds eSocial submission lots and SOAP envelopes, and reads
the service's answers.

# Lots

A lot (lote) groups signed events of one family under the employer and
transmitter identification:

	<eSocial xmlns="http://www.esocial.gov.br/schema/lote/eventos/envio/v1_1_1">
	  <envioLoteEventos grupo="1">
	    <ideEmpregador><tpInsc>1</tpInsc><nrInsc>12345678</nrInsc></ideEmpregador>
	    <ideTransmissor><tpInsc>1</tpInsc><nrInsc>12345678</nrInsc></ideTransmissor>
	    <eventos>
	      <evento Id="ID1..."><eSocial xmlns="...evt/evtInfoEmpregador/...">...</eSocial></evento>
	    </eventos>
	  </envioLoteEventos>
	</eSocial>

Use the builder to assemble one:

	lot, err := message.NewBatch(
	    message.WithGroup(schema.GroupTables),
	    message.WithEmployer("1", "12345678"),
	).AddEvent(id, signedXML).Build()

Signed event documents are embedded byte for byte, so their signatures
survive the trip. [WrapInBatch] produces the unsigned preview shown before
signing.

# SOAP

[BuildEnvelope] wraps a lot in the SOAP 1.1 EnviarLoteEventos request and
[ParseResponse] extracts the lot status, occurrences and protocol number
from whatever came back.

# References

  - eSocial developer manual (Manual de Orientação do Desenvolvedor)
  - SOAP 1.1: https://www.w3.org/TR/2000/NOTE-SOAP-20000508/
*/
package message
