package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var (
	// ErrUnknownEventType is returned for type codes missing from the catalog.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrInvalidCatalog is returned when a catalog fails validation.
	ErrInvalidCatalog = errors.New("invalid event catalog")
)

// Catalog is the set of event schemas known to the process.
type Catalog struct {
	schemas map[string]*EventSchema
	order   []string
}

type catalogFile struct {
	Schemas []*EventSchema `yaml:"schemas"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// LoadCatalog reads a catalog from a YAML file. An empty path loads the
// embedded default.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return NewCatalog(file.Schemas...)
}

// NewCatalog builds a catalog from schemas, filling root tags and versions
// and validating each schema.
func NewCatalog(schemas ...*EventSchema) (*Catalog, error) {
	c := &Catalog{schemas: make(map[string]*EventSchema, len(schemas))}
	for _, s := range schemas {
		if s == nil {
			continue
		}
		if err := prepare(s); err != nil {
			return nil, err
		}
		if _, dup := c.schemas[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate event type %s", ErrInvalidCatalog, s.ID)
		}
		c.schemas[s.ID] = s
		c.order = append(c.order, s.ID)
	}
	sort.Strings(c.order)
	return c, nil
}

func prepare(s *EventSchema) error {
	if s.ID == "" {
		return fmt.Errorf("%w: schema without id", ErrInvalidCatalog)
	}
	if s.RootTag == "" {
		tag, ok := RootTag(s.ID)
		if !ok {
			return fmt.Errorf("%w: %s has no root tag", ErrInvalidCatalog, s.ID)
		}
		s.RootTag = tag
	}
	if s.Version == "" {
		s.Version = DefaultVersion
	}
	if !GroupOf(s.ID).Valid() {
		return fmt.Errorf("%w: %s has no transmission group", ErrInvalidCatalog, s.ID)
	}
	for _, f := range s.Fields {
		if f.Name == "" || f.Path == "" {
			return fmt.Errorf("%w: %s has a field without name or path", ErrInvalidCatalog, s.ID)
		}
		if f.Type != "" && !f.Type.valid() {
			return fmt.Errorf("%w: %s field %s has unknown type %q", ErrInvalidCatalog, s.ID, f.Name, f.Type)
		}
		if _, ok := s.DefaultState.Lookup(f.Path); !ok {
			return fmt.Errorf("%w: %s field %s path %q is not in the default state", ErrInvalidCatalog, s.ID, f.Name, f.Path)
		}
	}
	return nil
}

// Get returns the schema for an event type.
func (c *Catalog) Get(eventType string) (*EventSchema, error) {
	s, ok := c.schemas[eventType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	return s, nil
}

// ForRootTag finds the schema whose documents use the given root tag.
func (c *Catalog) ForRootTag(tag string) (*EventSchema, bool) {
	for _, id := range c.order {
		if s := c.schemas[id]; s.RootTag == tag {
			return s, true
		}
	}
	return nil, false
}

// List returns all schemas ordered by type code.
func (c *Catalog) List() []*EventSchema {
	out := make([]*EventSchema, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.schemas[id])
	}
	return out
}

// Types returns the event type codes ordered.
func (c *Catalog) Types() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len returns the number of schemas.
func (c *Catalog) Len() int {
	return len(c.order)
}
