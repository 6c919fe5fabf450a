// Package annotation keeps the measurement annotations of each image in
// memory. Annotations are expressed in pixels of the raster currently on
// display, so they are rescaled whenever that raster changes.
package annotation

import (
	"fmt"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"klvviewer/internal/models"
)

// Store maps images to their annotations
type Store struct {
	mu   sync.Mutex
	anns map[models.ImageID][]models.Annotation
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{anns: make(map[models.ImageID][]models.Annotation)}
}

// Add appends records for tool on id, creating the tool entry when needed
func (s *Store) Add(id models.ImageID, tool string, records ...models.AnnotationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.anns[id]
	for i := range list {
		if list[i].Tool == tool {
			list[i].Records = append(list[i].Records, records...)
			return
		}
	}
	s.anns[id] = append(list, models.Annotation{Tool: tool, Records: records})
}

// Get returns a deep copy of the annotations of id
func (s *Store) Get(id models.ImageID) []models.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.anns[id])
}

// Update gives fn exclusive access to the annotations of id. Changes made by
// fn are kept in place.
func (s *Store) Update(id models.ImageID, fn func([]models.Annotation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.anns[id])
}

// Images returns the ids that have annotations
func (s *Store) Images() []models.ImageID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ImageID, 0, len(s.anns))
	for id := range s.anns {
		out = append(out, id)
	}
	return out
}

// Inside counts the records of anns whose handles touch a raster of size res.
// Records without handles are counted in total only.
func Inside(anns []models.Annotation, res models.Resolution) (inside, total int) {
	canvas := orb.Bound{Max: orb.Point{float64(res.Width), float64(res.Height)}}
	for _, a := range anns {
		for _, r := range a.Records {
			total++
			if len(r.Handles) > 0 && r.Bound().Intersects(canvas) {
				inside++
			}
		}
	}
	return inside, total
}

func clone(anns []models.Annotation) []models.Annotation {
	if anns == nil {
		return nil
	}
	out := make([]models.Annotation, len(anns))
	for i, a := range anns {
		out[i].Tool = a.Tool
		out[i].Records = make([]models.AnnotationRecord, len(a.Records))
		for j, r := range a.Records {
			out[i].Records[j] = models.AnnotationRecord{
				ID:      r.ID,
				Handles: append(r.Handles[:0:0], r.Handles...),
				Lengths: append(r.Lengths[:0:0], r.Lengths...),
			}
		}
	}
	return out
}

// fileEntry is the on-disk form of the annotations of one image
type fileEntry struct {
	Image       string              `yaml:"image"`
	Annotations []models.Annotation `yaml:"annotations"`
}

// LoadFile reads annotations saved with SaveFile into the store
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading annotations: %w", err)
	}
	var entries []fileEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("error parsing annotations: %w", err)
	}
	for _, e := range entries {
		id, err := models.ParseImageID(e.Image)
		if err != nil {
			return err
		}
		for _, a := range e.Annotations {
			s.Add(id, a.Tool, a.Records...)
		}
	}
	return nil
}

// SaveFile writes every annotation of the store to path
func (s *Store) SaveFile(path string) error {
	s.mu.Lock()
	entries := make([]fileEntry, 0, len(s.anns))
	for id, anns := range s.anns {
		entries = append(entries, fileEntry{Image: id.String(), Annotations: clone(anns)})
	}
	s.mu.Unlock()

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("error marshaling annotations: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing annotations: %w", err)
	}
	return nil
}
