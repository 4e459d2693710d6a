package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gadgetlabs/Gaffer/pkg/operation"
)

// Declaration binds an operation class to a named handler.
//
// Example file:
//
//	operations:
//	  - operation: Limit
//	    handler: limit
type Declaration struct {
	Operation string `yaml:"operation" json:"operation"`
	Handler   string `yaml:"handler" json:"handler"`
}

// Declarations is the content of one declarations file.
type Declarations struct {
	Operations []Declaration `yaml:"operations" json:"operations"`
}

// LoadDeclarations reads a declarations file.
func LoadDeclarations(path string) (*Declarations, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read operation declarations: %w", err)
	}
	return ParseDeclarations(data)
}

// ParseDeclarations decodes declarations from YAML or JSON.
func ParseDeclarations(data []byte) (*Declarations, error) {
	var d Declarations
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeclaration, err)
	}
	for i, decl := range d.Operations {
		if decl.Operation == "" || decl.Handler == "" {
			return nil, fmt.Errorf("%w: entry %d needs operation and handler", ErrInvalidDeclaration, i)
		}
	}
	return &d, nil
}

// Apply registers every declaration in r, resolving operation classes with
// codec and handler names with catalog.
func (d *Declarations) Apply(r *HandlerRegistry, codec *operation.Codec, catalog *HandlerCatalog) error {
	for _, decl := range d.Operations {
		op, err := codec.New(decl.Operation)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidDeclaration, err)
		}
		h, ok := catalog.Lookup(decl.Handler)
		if !ok {
			return fmt.Errorf("%w: unknown handler %q for %s", ErrInvalidDeclaration, decl.Handler, decl.Operation)
		}
		r.Register(op, h)
	}
	return nil
}
