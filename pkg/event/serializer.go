package event

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"

	"github.com/sirosfoundation/go-esocial/pkg/eventid"
	"github.com/sirosfoundation/go-esocial/pkg/formdata"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
)

// Header defaults used when the form data leaves them out.
const (
	DefaultTpAmb    = "2"
	DefaultProcEmi  = "1"
	DefaultVerProc  = "1.0.0"
	DefaultTpInsc   = "1"
	DefaultIndRetif = "1"
)

// controlFields feed the header and are never serialized into the body.
var controlFields = map[string]bool{
	"tpAmb":         true,
	"tpInsc":        true,
	"nrInsc":        true,
	"procEmi":       true,
	"verProc":       true,
	"ideEvento":     true,
	"ideEmpregador": true,
}

// IDSource produces event Ids.
type IDSource interface {
	Generate(tpInsc, nrInsc string) string
}

// Serializer converts form data to event documents. It holds no per-call
// state and is safe for concurrent use.
type Serializer struct {
	ids    IDSource
	indent int
}

// SerializerOption configures a Serializer.
type SerializerOption func(*Serializer)

// WithIDSource replaces the Id generator.
func WithIDSource(ids IDSource) SerializerOption {
	return func(s *Serializer) {
		s.ids = ids
	}
}

// WithIndent sets the number of spaces per nesting level. Zero disables
// indentation.
func WithIndent(n int) SerializerOption {
	return func(s *Serializer) {
		s.indent = n
	}
}

// NewSerializer creates a Serializer using eventid.New and two-space indent.
func NewSerializer(opts ...SerializerOption) *Serializer {
	s := &Serializer{
		ids:    eventid.New(),
		indent: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serialize builds the document for an event type using the built-in root
// tag table. Unknown types are written under schema.GenericRootTag.
func (s *Serializer) Serialize(eventType string, data *formdata.Object) (*Document, error) {
	tag, _ := schema.RootTag(eventType)
	return s.build(eventType, tag, schema.DefaultVersion, data)
}

// SerializeSchema builds the document using the root tag and layout
// version declared by the catalog schema.
func (s *Serializer) SerializeSchema(sch *schema.EventSchema, data *formdata.Object) (*Document, error) {
	return s.build(sch.ID, sch.RootTag, sch.Version, data)
}

func (s *Serializer) build(eventType, rootTag, version string, data *formdata.Object) (*Document, error) {
	if data == nil {
		data = formdata.New()
	}
	h := readHeader(data)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	wrapper := doc.CreateElement("eSocial")
	wrapper.CreateAttr("xmlns", schema.Namespace(rootTag, version))

	id := s.ids.Generate(h.tpInsc, h.nrInsc)
	evt := wrapper.CreateElement(rootTag)
	evt.CreateAttr("Id", id)

	exclusion := schema.IsExclusion(eventType)
	h.write(evt, exclusion, schema.HasRetification(eventType))

	if exclusion {
		info := evt.CreateElement("infoExclusao")
		if body, ok := data.Get("infoExclusao"); ok {
			if obj, ok := body.(*formdata.Object); ok {
				writeChildren(info, obj)
			}
		}
	} else {
		for _, key := range data.Keys() {
			if controlFields[key] {
				continue
			}
			v, _ := data.Get(key)
			writeValue(evt, key, v)
		}
	}

	if s.indent > 0 {
		doc.Indent(s.indent)
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to write XML: %w", err)
	}

	return &Document{
		EventType: eventType,
		RootTag:   rootTag,
		ID:        id,
		Group:     schema.GroupOf(eventType),
		TpInsc:    h.tpInsc,
		NrInsc:    h.nrInsc,
		XML:       out,
	}, nil
}

// header is the ideEvento/ideEmpregador content of one event.
type header struct {
	tpAmb, procEmi, verProc string
	tpInsc, nrInsc          string
	ideEvento               *formdata.Object
}

func readHeader(data *formdata.Object) header {
	h := header{}
	if v, ok := data.Get("ideEvento"); ok {
		h.ideEvento, _ = v.(*formdata.Object)
	}
	var emp *formdata.Object
	if v, ok := data.Get("ideEmpregador"); ok {
		emp, _ = v.(*formdata.Object)
	}

	h.tpAmb = firstText(DefaultTpAmb, data, "tpAmb", h.ideEvento)
	h.procEmi = firstText(DefaultProcEmi, data, "procEmi", h.ideEvento)
	h.verProc = firstText(DefaultVerProc, data, "verProc", h.ideEvento)
	h.tpInsc = firstText(DefaultTpInsc, data, "tpInsc", emp)
	h.nrInsc = eventid.Digits(firstText("", data, "nrInsc", emp))
	return h
}

// firstText returns the first non-empty value of key in the given objects,
// or def.
func firstText(def string, primary *formdata.Object, key string, secondary *formdata.Object) string {
	for _, o := range []*formdata.Object{primary, secondary} {
		if o == nil {
			continue
		}
		if v, ok := o.Get(key); ok && !formdata.IsEmpty(v) {
			if text, ok := formdata.Text(v); ok {
				return text
			}
		}
	}
	return def
}

func (h header) write(evt *etree.Element, exclusion, retification bool) {
	ide := evt.CreateElement("ideEvento")

	if retification {
		indRetif := firstText(DefaultIndRetif, h.ideEvento, "indRetif", nil)
		leaf(ide, "indRetif", indRetif)
	}
	if !exclusion && h.ideEvento != nil {
		for _, key := range h.ideEvento.Keys() {
			switch key {
			case "indRetif", "tpAmb", "procEmi", "verProc":
				continue
			}
			v, _ := h.ideEvento.Get(key)
			writeValue(ide, key, v)
		}
	}
	leaf(ide, "tpAmb", h.tpAmb)
	leaf(ide, "procEmi", h.procEmi)
	leaf(ide, "verProc", h.verProc)

	emp := evt.CreateElement("ideEmpregador")
	leaf(emp, "tpInsc", h.tpInsc)
	leaf(emp, "nrInsc", h.nrInsc)
}

func leaf(parent *etree.Element, tag, text string) {
	parent.CreateElement(tag).SetText(norm.NFC.String(text))
}

func writeChildren(parent *etree.Element, obj *formdata.Object) {
	if list, ok := indexedList(obj); ok {
		for _, v := range list {
			if child, ok := v.(*formdata.Object); ok {
				writeChildren(parent, child)
			}
		}
		return
	}
	for _, key := range obj.Keys() {
		v, _ := obj.Get(key)
		writeValue(parent, key, v)
	}
}

// writeValue emits key=v under parent. Empty leaves and branches without any
// emitted child produce nothing.
func writeValue(parent *etree.Element, key string, v any) {
	if formdata.IsEmpty(v) {
		return
	}
	switch t := v.(type) {
	case *formdata.Object:
		if list, ok := indexedList(t); ok {
			writeValue(parent, key, list)
			return
		}
		el := parent.CreateElement(key)
		writeChildren(el, t)
		if len(el.ChildElements()) == 0 {
			parent.RemoveChild(el)
		}
	case formdata.List:
		for _, item := range t {
			writeValue(parent, key, item)
		}
	default:
		text, ok := formdata.Text(t)
		if !ok {
			return
		}
		leaf(parent, key, text)
	}
}

// indexedList recognizes objects keyed "0", "1", ... produced by upstream
// flatteners that encode arrays as objects.
func indexedList(obj *formdata.Object) (formdata.List, bool) {
	keys := obj.Keys()
	if len(keys) == 0 {
		return nil, false
	}
	type entry struct {
		n   int
		key string
	}
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		n, err := strconv.Atoi(k)
		if err != nil || n < 0 {
			return nil, false
		}
		entries = append(entries, entry{n: n, key: k})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].n < entries[j].n })
	list := make(formdata.List, 0, len(entries))
	for _, e := range entries {
		v, _ := obj.Get(e.key)
		list = append(list, v)
	}
	return list, true
}
