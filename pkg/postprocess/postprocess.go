// Package postprocess transforms decoded rasters before they are displayed.
// Processors are chained after the image id, as in
//
//	instance:frame|invert|flip~horizontal
//
// where each step is a registered processor name followed by its arguments,
// separated by '~'.
package postprocess

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"klvviewer/internal/models"
)

var (
	ErrUnknownProcessor = errors.New("postprocess: unknown processor")
	ErrInvalidArgs      = errors.New("postprocess: invalid arguments")
)

// Processor transforms one raster. The input buffer may be shared with other
// sessions through the cache and must not be modified; implementations
// return a new buffer.
type Processor interface {
	Process(buf *models.PixelBuffer, meta models.Metadata) (*models.PixelBuffer, models.Metadata, error)
}

// Constructor builds a processor from the arguments following its name
type Constructor func(args ...string) (Processor, error)

// Registry maps processor names to constructors
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry creates a registry holding the built-in processors
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.Register("invert", newInvert)
	r.Register("flip", newFlip)
	return r
}

// Register adds or replaces the constructor of name
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[name] = ctor
}

// Names returns the registered processor names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Step is one configured processor of a chain
type Step struct {
	Name string
	Args []string
	Processor
}

func (s Step) String() string {
	return strings.Join(append([]string{s.Name}, s.Args...), "~")
}

// Chain is an ordered list of steps. The zero chain leaves rasters untouched.
type Chain []Step

func (c Chain) String() string {
	var sb strings.Builder
	for _, s := range c {
		sb.WriteByte('|')
		sb.WriteString(s.String())
	}
	return sb.String()
}

// Apply runs every step in order. The input is returned as is for an empty
// chain.
func (c Chain) Apply(buf *models.PixelBuffer, meta models.Metadata) (*models.PixelBuffer, models.Metadata, error) {
	for _, s := range c {
		out, m, err := s.Process(buf, meta)
		if err != nil {
			return nil, meta, fmt.Errorf("%s: %w", s.Name, err)
		}
		buf, meta = out, m
	}
	return buf, meta, nil
}

// Parse splits s into the image id and the chain that follows it
func (r *Registry) Parse(s string) (models.ImageID, Chain, error) {
	parts := strings.Split(s, "|")
	id, err := models.ParseImageID(parts[0])
	if err != nil {
		return models.ImageID{}, nil, err
	}

	var chain Chain
	for _, p := range parts[1:] {
		fields := strings.Split(p, "~")
		r.mu.RLock()
		ctor, ok := r.ctors[fields[0]]
		r.mu.RUnlock()
		if !ok {
			return models.ImageID{}, nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, fields[0])
		}
		proc, err := ctor(fields[1:]...)
		if err != nil {
			return models.ImageID{}, nil, fmt.Errorf("%s: %w", fields[0], err)
		}
		chain = append(chain, Step{Name: fields[0], Args: fields[1:], Processor: proc})
	}
	return id, chain, nil
}

var defaultRegistry = NewRegistry()

// Register adds a processor to the default registry
func Register(name string, ctor Constructor) {
	defaultRegistry.Register(name, ctor)
}

// Parse parses s against the default registry
func Parse(s string) (models.ImageID, Chain, error) {
	return defaultRegistry.Parse(s)
}
