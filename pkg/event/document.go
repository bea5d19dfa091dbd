package event

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"

	"github.com/beevik/etree"

	"github.com/sirosfoundation/go-esocial/pkg/formdata"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
)

// Document is a serialized, unsigned event. Documents are never modified
// after creation.
type Document struct {
	EventType string
	RootTag   string
	ID        string
	Group     schema.Group
	TpInsc    string
	NrInsc    string
	XML       []byte
}

// String returns the XML text.
func (d *Document) String() string {
	return string(d.XML)
}

var prologRE = regexp.MustCompile(`^\s*<\?xml[^>]*\?>\s*`)

// StripProlog removes a leading XML declaration.
func StripProlog(xml []byte) []byte {
	return bytes.TrimSpace(prologRE.ReplaceAll(xml, nil))
}

// ErrNoEventElement is returned when a document has no element carrying Id.
var ErrNoEventElement = errors.New("no event element with an Id attribute")

// Info is what a parsed event document says about itself.
type Info struct {
	RootTag string
	ID      string
	TpInsc  string
	NrInsc  string
	Signed  bool
	Body    *formdata.Object
}

// Inspect parses an event document and reads its identification. Missing
// header values are left empty; callers decide which ones they need.
func Inspect(xml []byte) (*Info, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xml); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("no root element found")
	}

	evt := root
	if root.SelectAttr("Id") == nil {
		evt = root.FindElement("./*[@Id]")
	}
	if evt == nil {
		return nil, ErrNoEventElement
	}

	info := &Info{
		RootTag: evt.Tag,
		ID:      evt.SelectAttrValue("Id", ""),
		Body:    formdata.New(),
	}
	if emp := evt.FindElement("./ideEmpregador"); emp != nil {
		info.TpInsc = childText(emp, "tpInsc")
		info.NrInsc = childText(emp, "nrInsc")
	}
	if evt.FindElement("./Signature") != nil || root.FindElement("./Signature") != nil {
		info.Signed = true
	}

	for _, child := range evt.ChildElements() {
		switch child.Tag {
		case "ideEvento", "ideEmpregador", "Signature":
			continue
		}
		addElement(info.Body, child)
	}
	return info, nil
}

func childText(parent *etree.Element, tag string) string {
	if el := parent.FindElement("./" + tag); el != nil {
		return el.Text()
	}
	return ""
}

// addElement stores el under its tag; repeated siblings become a List.
func addElement(obj *formdata.Object, el *etree.Element) {
	var v any
	if children := el.ChildElements(); len(children) > 0 {
		child := formdata.New()
		for _, c := range children {
			addElement(child, c)
		}
		v = child
	} else {
		v = el.Text()
	}

	existing, ok := obj.Get(el.Tag)
	if !ok {
		obj.Set(el.Tag, v)
		return
	}
	if list, isList := existing.(formdata.List); isList {
		obj.Set(el.Tag, append(list, v))
		return
	}
	obj.Set(el.Tag, formdata.List{existing, v})
}

// Parse wraps externally supplied event XML in a Document. The event type
// and group are derived from the root tag.
func Parse(xml []byte) (*Document, error) {
	info, err := Inspect(xml)
	if err != nil {
		return nil, err
	}
	eventType, _ := schema.EventTypeForRootTag(info.RootTag)
	return &Document{
		EventType: eventType,
		RootTag:   info.RootTag,
		ID:        info.ID,
		Group:     schema.GroupForRootTag(info.RootTag),
		TpInsc:    info.TpInsc,
		NrInsc:    info.NrInsc,
		XML:       xml,
	}, nil
}
