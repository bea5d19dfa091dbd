package schema

import (
	"strconv"
	"strings"
)

// Group classifies an event family for envioLoteEventos/@grupo.
type Group int

const (
	GroupTables      Group = 1
	GroupNonPeriodic Group = 2
	GroupPeriodic    Group = 3
)

func (g Group) String() string {
	switch g {
	case GroupTables:
		return "tables"
	case GroupNonPeriodic:
		return "non-periodic"
	case GroupPeriodic:
		return "periodic"
	}
	return "group(" + strconv.Itoa(int(g)) + ")"
}

// Valid reports whether g is one of the three eSocial groups.
func (g Group) Valid() bool {
	return g >= GroupTables && g <= GroupPeriodic
}

// GenericRootTag is emitted for event types missing from the root tag table.
const GenericRootTag = "evtGenerico"

// DefaultVersion is the event layout version used in namespaces.
const DefaultVersion = "v_S_01_03_00"

var rootTags = map[string]string{
	"S-1000": "evtInfoEmpregador",
	"S-1005": "evtTabEstab",
	"S-1010": "evtTabRubrica",
	"S-1020": "evtTabLotacao",
	"S-1070": "evtTabProcesso",

	"S-1200": "evtRemun",
	"S-1202": "evtRmnRPPS",
	"S-1207": "evtBenPrRP",
	"S-1210": "evtPgtos",
	"S-1260": "evtComProd",
	"S-1270": "evtContratAvNP",
	"S-1280": "evtInfoComplPer",
	"S-1298": "evtReabreEvPer",
	"S-1299": "evtFech",

	"S-2190": "evtAdmPrelim",
	"S-2200": "evtAdmissao",
	"S-2205": "evtAltCadastral",
	"S-2206": "evtAltContratual",
	"S-2210": "evtCAT",
	"S-2220": "evtMonit",
	"S-2221": "evtToxic",
	"S-2230": "evtAfastTemp",
	"S-2231": "evtCessao",
	"S-2240": "evtExpRisco",
	"S-2298": "evtReintegr",
	"S-2299": "evtDeslig",
	"S-2300": "evtTSVInicio",
	"S-2306": "evtTSVAltContr",
	"S-2399": "evtTSVTermino",
	"S-2400": "evtCdBenefIn",
	"S-2405": "evtCdBenefAlt",
	"S-2410": "evtCdBenIn",
	"S-2416": "evtCdBenAlt",
	"S-2418": "evtReativBen",
	"S-2420": "evtCdBenTerm",
	"S-2500": "evtProcTrab",
	"S-2501": "evtContrProc",
	"S-2555": "evtConsolidContrProc",

	"S-3000": "evtExclusao",
	"S-3500": "evtExcProcTrab",

	"S-8200": "evtAdmissaoJudicial",
	"S-8299": "evtDesligamentoJudicial",
}

var typesByRootTag = func() map[string]string {
	m := make(map[string]string, len(rootTags))
	for typ, tag := range rootTags {
		m[tag] = typ
	}
	return m
}()

// RootTag returns the XML root tag for an event type. Unknown types get
// GenericRootTag and ok=false.
func RootTag(eventType string) (tag string, ok bool) {
	tag, ok = rootTags[eventType]
	if !ok {
		return GenericRootTag, false
	}
	return tag, true
}

// EventTypeForRootTag is the reverse of RootTag.
func EventTypeForRootTag(tag string) (string, bool) {
	typ, ok := typesByRootTag[tag]
	return typ, ok
}

// IsExclusion reports whether the event type uses the infoExclusao body.
func IsExclusion(eventType string) bool {
	return eventType == "S-3000" || eventType == "S-3500"
}

// noRetification lists the event types whose ideEvento has no indRetif:
// the periodic closing and reopening events and the exclusions.
var noRetification = map[string]bool{
	"S-1298": true,
	"S-1299": true,
	"S-3000": true,
	"S-3500": true,
}

// HasRetification reports whether the event header carries indRetif.
func HasRetification(eventType string) bool {
	return !noRetification[eventType]
}

// GroupOf classifies an event type code.
func GroupOf(eventType string) Group {
	n, ok := typeNumber(eventType)
	if !ok {
		return GroupNonPeriodic
	}
	switch {
	case n >= 1000 && n < 1100:
		return GroupTables
	case n >= 1200 && n < 1300:
		return GroupPeriodic
	default:
		return GroupNonPeriodic
	}
}

// GroupForRootTag classifies a signed document by its root tag. Tags in the
// table resolve through GroupOf; other tags fall back to family prefixes.
func GroupForRootTag(tag string) Group {
	if typ, ok := typesByRootTag[tag]; ok {
		return GroupOf(typ)
	}
	switch {
	case strings.HasPrefix(tag, "evtInfoEmpregador"), strings.HasPrefix(tag, "evtTab"):
		return GroupTables
	case strings.HasPrefix(tag, "evtRemun"), strings.HasPrefix(tag, "evtPgtos"),
		strings.HasPrefix(tag, "evtAqProd"), strings.HasPrefix(tag, "evtComProd"):
		return GroupPeriodic
	}
	return GroupNonPeriodic
}

func typeNumber(eventType string) (int, bool) {
	rest, ok := strings.CutPrefix(eventType, "S-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Namespace returns the event document namespace for a root tag.
func Namespace(rootTag, version string) string {
	if version == "" {
		version = DefaultVersion
	}
	return "http://www.esocial.gov.br/schema/evt/" + rootTag + "/" + version
}
