package quality

import (
	"reflect"
	"testing"

	"klvviewer/internal/models"
)

// TestSelect verifies the qualities requested for each purpose
func TestSelect(t *testing.T) {
	tests := []struct {
		purpose Purpose
		want    []models.Quality
	}{
		{Diagnostic, []models.Quality{models.DownscaledLow, models.DownscaledHigh, models.Lossless}},
		{Thumbnail, []models.Quality{models.DownscaledLow}},
	}
	for _, tt := range tests {
		if got := Select(tt.purpose); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.purpose, tt.want, got)
		}
	}
}

// TestParsePurpose verifies purpose names
func TestParsePurpose(t *testing.T) {
	for _, p := range []Purpose{Diagnostic, Thumbnail} {
		got, err := ParsePurpose(p.String())
		if err != nil || got != p {
			t.Errorf("Expected %s, got %s (%v)", p, got, err)
		}
	}
	if _, err := ParsePurpose("print"); err == nil {
		t.Error("Expected an error for an unknown purpose")
	}
}

// TestAvailable verifies that filtering keeps the selection order
func TestAvailable(t *testing.T) {
	got := Available(Select(Diagnostic), []models.Quality{models.Lossless, models.DownscaledLow})
	want := []models.Quality{models.DownscaledLow, models.Lossless}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if got := Available(Select(Thumbnail), nil); len(got) != 0 {
		t.Errorf("Expected nothing, got %v", got)
	}
}
