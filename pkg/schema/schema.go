package schema

import (
	"github.com/sirosfoundation/go-esocial/pkg/formdata"
)

// FieldType is the input widget kind of a form field.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldSelect   FieldType = "select"
	FieldDate     FieldType = "date"
	FieldMonth    FieldType = "month"
	FieldTime     FieldType = "time"
	FieldTextarea FieldType = "textarea"
	FieldEmail    FieldType = "email"
)

func (t FieldType) valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldSelect, FieldDate, FieldMonth, FieldTime, FieldTextarea, FieldEmail:
		return true
	}
	return false
}

// Option is one choice of a select field.
type Option struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// FieldSpec describes one form field.
type FieldSpec struct {
	Name        string    `yaml:"name" json:"name"`
	Label       string    `yaml:"label" json:"label"`
	Type        FieldType `yaml:"type" json:"type"`
	Path        string    `yaml:"path" json:"path"`
	Required    bool      `yaml:"required,omitempty" json:"required,omitempty"`
	Group       string    `yaml:"group,omitempty" json:"group,omitempty"`
	Options     []Option  `yaml:"options,omitempty" json:"options,omitempty"`
	MaxLength   int       `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	Placeholder string    `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
}

// EventSchema describes one eSocial event type. Schemas are immutable once
// the catalog is loaded; DefaultState must be cloned before use.
type EventSchema struct {
	ID           string           `yaml:"id" json:"id"`
	Title        string           `yaml:"title" json:"title"`
	Description  string           `yaml:"description,omitempty" json:"description,omitempty"`
	RootTag      string           `yaml:"rootTag,omitempty" json:"rootTag"`
	Version      string           `yaml:"version,omitempty" json:"version"`
	DefaultState *formdata.Object `yaml:"defaultState" json:"defaultState"`
	Fields       []FieldSpec      `yaml:"fields" json:"fields"`
}

// Group returns the transmission group of the event type.
func (s *EventSchema) Group() Group {
	return GroupOf(s.ID)
}

// Namespace returns the event document namespace.
func (s *EventSchema) Namespace() string {
	return Namespace(s.RootTag, s.Version)
}

// NewFormData returns a fresh copy of the default state.
func (s *EventSchema) NewFormData() *formdata.Object {
	if s.DefaultState == nil {
		return formdata.New()
	}
	return s.DefaultState.Clone()
}

// Field returns the field spec with the given name.
func (s *EventSchema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}
