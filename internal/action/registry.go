package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/factcheck/internal/model"
)

var (
	// ErrUnknownAction is returned for action names missing from the registry
	ErrUnknownAction = errors.New("unknown action")

	// ErrInvalidArguments is returned when a call cannot build its action
	ErrInvalidArguments = errors.New("invalid action arguments")
)

// BuildFunc constructs an action from parsed call arguments
type BuildFunc func(args []string, kwargs map[string]string) (model.Action, error)

// Descriptor documents an action and knows how to build it
type Descriptor struct {
	Name        string
	Description string
	HowTo       string
	Format      string
	Multimodal  bool // Operates on a claim image
	Limited     bool // Expensive, use sparingly
	Build       BuildFunc
}

// Registry maps action names to descriptors
type Registry struct {
	byName map[string]Descriptor
	order  []string
}

// NewRegistry creates a registry; duplicate names are an error
func NewRegistry(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("action descriptor without name")
		}
		if d.Build == nil {
			return nil, fmt.Errorf("action %s has no builder", d.Name)
		}
		if _, exists := r.byName[d.Name]; exists {
			return nil, fmt.Errorf("duplicate action %s", d.Name)
		}
		r.byName[d.Name] = d
		r.order = append(r.order, d.Name)
	}
	return r, nil
}

// DefaultRegistry returns the built-in search, geolocate and
// detect_manipulation actions
func DefaultRegistry() *Registry {
	r, err := NewRegistry(SearchDescriptor(), GeolocateDescriptor(), DetectManipulationDescriptor())
	if err != nil {
		panic(err) // Built-in descriptors are static
	}
	return r
}

// Lookup returns the descriptor for name
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns registered names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Restrict returns a registry containing only the given names
func (r *Registry) Restrict(names []string) (*Registry, error) {
	var descriptors []Descriptor
	for _, name := range names {
		d, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
		}
		descriptors = append(descriptors, d)
	}
	return NewRegistry(descriptors...)
}

// Build constructs the named action
func (r *Registry) Build(name string, args []string, kwargs map[string]string) (model.Action, error) {
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	a, err := d.Build(args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArguments, name, err)
	}
	return a, nil
}

// Documentation renders the how-to block for the given actions, or for
// all registered actions when names is empty
func (r *Registry) Documentation(names []string) string {
	if len(names) == 0 {
		names = r.order
	}

	var b strings.Builder
	for i, name := range names {
		d, ok := r.byName[name]
		if !ok {
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n", d.Name)
		fmt.Fprintf(&b, "Description: %s\n", d.Description)
		fmt.Fprintf(&b, "How to use: %s\n", d.HowTo)
		fmt.Fprintf(&b, "Format: %s", d.Format)
		if d.Limited {
			b.WriteString("\nThis action is expensive. Use it only when necessary.")
		}
	}
	return b.String()
}

// MultimodalNames returns the sorted names of image actions
func (r *Registry) MultimodalNames() []string {
	var names []string
	for name, d := range r.byName {
		if d.Multimodal {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
