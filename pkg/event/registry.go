package event

import (
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-esocial/pkg/formdata"
	"github.com/sirosfoundation/go-esocial/pkg/schema"
)

// BuildFunc builds the document for one event type.
type BuildFunc func(s *Serializer, sch *schema.EventSchema, data *formdata.Object) (*Document, error)

// BuildStandard writes the header followed by the form data.
func BuildStandard(s *Serializer, sch *schema.EventSchema, data *formdata.Object) (*Document, error) {
	return s.SerializeSchema(sch, data)
}

// BuildExclusion writes the header followed by infoExclusao.
func BuildExclusion(s *Serializer, sch *schema.EventSchema, data *formdata.Object) (*Document, error) {
	if !schema.IsExclusion(sch.ID) {
		return nil, fmt.Errorf("%s is not an exclusion event", sch.ID)
	}
	return s.SerializeSchema(sch, data)
}

// Registry dispatches event type codes to their builders.
type Registry struct {
	catalog    *schema.Catalog
	serializer *Serializer
	builders   map[string]BuildFunc
}

// NewRegistry registers a builder for every event type of the catalog and
// validates the result.
func NewRegistry(catalog *schema.Catalog, serializer *Serializer) (*Registry, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if serializer == nil {
		serializer = NewSerializer()
	}
	r := &Registry{
		catalog:    catalog,
		serializer: serializer,
		builders:   make(map[string]BuildFunc),
	}
	for _, typ := range catalog.Types() {
		fn := BuildStandard
		if schema.IsExclusion(typ) {
			fn = BuildExclusion
		}
		r.builders[typ] = fn
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register overrides the builder of a catalog event type.
func (r *Registry) Register(eventType string, fn BuildFunc) error {
	if fn == nil {
		return fmt.Errorf("nil builder for %s", eventType)
	}
	if _, err := r.catalog.Get(eventType); err != nil {
		return err
	}
	r.builders[eventType] = fn
	return nil
}

// Validate checks that catalog and builders cover each other.
func (r *Registry) Validate() error {
	for _, typ := range r.catalog.Types() {
		if _, ok := r.builders[typ]; !ok {
			return fmt.Errorf("no builder registered for %s", typ)
		}
	}
	for typ := range r.builders {
		if _, err := r.catalog.Get(typ); err != nil {
			return fmt.Errorf("builder registered for %s: %w", typ, err)
		}
	}
	return nil
}

// Serializer returns the serializer builders write with.
func (r *Registry) Serializer() *Serializer {
	return r.serializer
}

// Catalog returns the catalog the registry was built from.
func (r *Registry) Catalog() *schema.Catalog {
	return r.catalog
}

// Generate overlays data on the schema's default state and builds the
// event. data may use nested objects or dot-path keys.
func (r *Registry) Generate(eventType string, data *formdata.Object) (*Document, error) {
	sch, err := r.catalog.Get(eventType)
	if err != nil {
		return nil, err
	}
	fn, ok := r.builders[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnknownEventType, eventType)
	}

	form, err := r.Prepare(sch, data)
	if err != nil {
		return nil, err
	}
	return fn(r.serializer, sch, form)
}

// Prepare returns the schema default state with data merged on top.
func (r *Registry) Prepare(sch *schema.EventSchema, data *formdata.Object) (*formdata.Object, error) {
	expanded, err := formdata.Expand(data)
	if err != nil {
		return nil, err
	}
	form := sch.NewFormData()
	form.Merge(expanded)
	return form, nil
}
