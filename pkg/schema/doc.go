// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package schema holds the eSocial event catalog: the per-event-type field
definitions, default form state, XML root tag and transport group.

# Event Types and Groups

Every event type code (for example "S-1000") maps to exactly one XML root
tag ("evtInfoEmpregador") and one transmission group:

	GroupTables       (1) - S-1000 .. S-1080 table events
	GroupNonPeriodic  (2) - S-2xxx, S-3xxx and S-8xxx events
	GroupPeriodic     (3) - S-1200 .. S-1299 payroll events

The group is resolved from the type code when a document is generated and
carried with the document through signing and transmission. [GroupForRootTag]
resolves the same table from a root tag for callers that only hold signed XML.

# Catalog

The catalog is YAML. A default catalog is embedded; deployments can point
the server at their own file:

	schemas:
	  - id: S-1000
	    title: Informações do Empregador
	    defaultState:
	      tpAmb: 2
	      tpInsc: 1
	      nrInsc: ""
	      infoEmpregador:
	        inclusao:
	          idePeriodo:
	            iniValid: ""
	    fields:
	      - name: iniValid
	        label: Início Validade
	        type: month
	        path: infoEmpregador.inclusao.idePeriodo.iniValid
	        required: true

Loading validates that every schema has a root tag and that every field path
exists in the schema's default state.
*/
package schema
