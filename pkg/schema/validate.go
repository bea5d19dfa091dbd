package schema

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirosfoundation/go-esocial/pkg/formdata"
)

// FieldProblem is one validation finding for a form field.
type FieldProblem struct {
	Field   string `json:"field"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in a form.
type ValidationError struct {
	EventType string
	Problems  []FieldProblem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Field + ": " + p.Message
	}
	return fmt.Sprintf("%s form is invalid: %s", e.EventType, strings.Join(msgs, "; "))
}

// Validate checks required fields, maximum lengths and select options.
// It returns nil or a *ValidationError.
func (s *EventSchema) Validate(data *formdata.Object) error {
	var problems []FieldProblem
	for _, f := range s.Fields {
		v, found := data.Lookup(f.Path)
		if !found || formdata.IsEmpty(v) {
			if f.Required {
				problems = append(problems, FieldProblem{Field: f.Name, Path: f.Path, Message: "is required"})
			}
			continue
		}

		text, ok := formdata.Text(v)
		if !ok {
			problems = append(problems, FieldProblem{Field: f.Name, Path: f.Path, Message: "must be a single value"})
			continue
		}
		if f.MaxLength > 0 && utf8.RuneCountInString(text) > f.MaxLength {
			problems = append(problems, FieldProblem{
				Field:   f.Name,
				Path:    f.Path,
				Message: fmt.Sprintf("exceeds %d characters", f.MaxLength),
			})
		}
		if f.Type == FieldSelect && len(f.Options) > 0 && !hasOption(f.Options, text) {
			problems = append(problems, FieldProblem{Field: f.Name, Path: f.Path, Message: fmt.Sprintf("%q is not an allowed option", text)})
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{EventType: s.ID, Problems: problems}
}

func hasOption(opts []Option, v string) bool {
	for _, o := range opts {
		if o.Value == v {
			return true
		}
	}
	return false
}
