package message

import (
	"strings"

	"github.com/beevik/etree"
)

// Occurrence is one entry of a lot answer's ocorrencias list.
type Occurrence struct {
	Type        string `json:"tipo,omitempty"`
	Code        string `json:"codigo"`
	Description string `json:"descricao"`
	Location    string `json:"localizacao,omitempty"`
}

// Result is what could be read from a lot submission answer. Fields the
// answer did not carry are left empty.
type Result struct {
	// Parsed is false when the body was not XML or carried no known answer.
	Parsed      bool         `json:"parsed"`
	Code        string       `json:"cdResposta,omitempty"`
	Description string       `json:"descResposta,omitempty"`
	Occurrences []Occurrence `json:"ocorrencias,omitempty"`
	Protocol    string       `json:"protocoloEnvio,omitempty"`
	ReceivedAt  string       `json:"dhRecepcao,omitempty"`
	Fault       string       `json:"fault,omitempty"`
}

// Accepted reports whether the service took the lot for processing.
func (r *Result) Accepted() bool {
	return strings.HasPrefix(r.Code, "2")
}

// ParseResponse reads a lot submission answer. It never fails: a body it
// cannot understand yields a Result with Parsed false.
func ParseResponse(body []byte) *Result {
	res := &Result{}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		return res
	}

	if fault := doc.FindElement("//Fault"); fault != nil {
		res.Parsed = true
		res.Fault = text(fault, "./faultstring")
		if res.Fault == "" {
			res.Fault = text(fault, ".//Text")
		}
	}

	ret := doc.FindElement("//retornoEnvioLoteEventos")
	if ret == nil {
		return res
	}
	res.Parsed = true
	res.Code = text(ret, "./status/cdResposta")
	res.Description = text(ret, "./status/descResposta")
	res.Protocol = text(ret, "./dadosRecepcaoLote/protocoloEnvio")
	res.ReceivedAt = text(ret, "./dadosRecepcaoLote/dhRecepcao")

	for _, oc := range ret.FindElements(".//ocorrencias/ocorrencia") {
		res.Occurrences = append(res.Occurrences, Occurrence{
			Type:        text(oc, "./tipo"),
			Code:        text(oc, "./codigo"),
			Description: text(oc, "./descricao"),
			Location:    text(oc, "./localizacao"),
		})
	}
	return res
}

func text(el *etree.Element, path string) string {
	if found := el.FindElement(path); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}
