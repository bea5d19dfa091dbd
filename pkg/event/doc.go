// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package event turns nested form data into eSocial event XML documents.

# Serialization

The serializer is schema agnostic. It writes a fixed header and then walks
the form data in key order:

	<eSocial xmlns="http://www.esocial.gov.br/schema/evt/evtInfoEmpregador/v_S_01_03_00">
	  <evtInfoEmpregador Id="ID1123456780001902024030514070900042">
	    <ideEvento>...</ideEvento>
	    <ideEmpregador>...</ideEmpregador>
	    <infoEmpregador>...</infoEmpregador>
	  </evtInfoEmpregador>
	</eSocial>

Branches become element pairs, scalars become leaf elements, and lists
become repeated elements with the same tag. Empty strings and nulls produce
no element at all, and a branch left without children is dropped too. Leaf
text is NFC-normalized and escaped by the XML writer.

The top-level control fields tpAmb, tpInsc, nrInsc, procEmi and verProc only
feed the header. Exclusion events (S-3000, S-3500) emit an infoExclusao body
instead of the standard walk.

# Dispatch

[Registry] maps every catalog event type to a [BuildFunc] and is validated
when it is created, so a request for an unknown type fails before any XML is
produced.
*/
package event
