package postprocess

import (
	"errors"
	"slices"
	"testing"

	"klvviewer/internal/models"
)

// TestParse verifies that the id and every step are split out of the string
func TestParse(t *testing.T) {
	id, chain, err := Parse("ct:2|invert|flip~horizontal")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if id != (models.ImageID{InstanceID: "ct", Frame: 2}) {
		t.Errorf("Expected ct:2, got %s", id)
	}
	if len(chain) != 2 || chain[0].Name != "invert" || chain[1].Name != "flip" {
		t.Fatalf("Expected invert then flip, got %v", chain)
	}
	if got := chain.String(); got != "|invert|flip~horizontal" {
		t.Errorf("Expected |invert|flip~horizontal, got %s", got)
	}

	_, chain, err = Parse("ct")
	if err != nil || len(chain) != 0 {
		t.Errorf("Expected an empty chain, got %v (%v)", chain, err)
	}

	tests := []struct {
		in   string
		want error
	}{
		{"ct|sharpen", ErrUnknownProcessor},
		{"ct|flip", ErrInvalidArgs},
		{"ct|flip~diagonal", ErrInvalidArgs},
		{"ct|invert~1", ErrInvalidArgs},
	}
	for _, tt := range tests {
		if _, _, err := Parse(tt.in); !errors.Is(err, tt.want) {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, err)
		}
	}
	if _, _, err := Parse(":3|invert"); err == nil {
		t.Error("Expected an error for an invalid image id")
	}
}

// TestInvertMono verifies that mono samples are mirrored inside their range
// and that the default window follows them
func TestInvertMono(t *testing.T) {
	buf := models.NewPixelBuffer(2, 2, models.MonoChannels, models.Int16)
	copy(buf.I16, []int16{-10, 0, 30, 50})
	meta := models.Metadata{Slope: 2, Intercept: 5, WindowCenter: 60}

	out, m, err := Chain{{Name: "invert", Processor: invert{}}}.Apply(buf, meta)
	if err != nil {
		t.Fatalf("Failed to invert: %v", err)
	}
	if want := []int16{50, 40, 10, -10}; !slices.Equal(out.I16, want) {
		t.Errorf("Expected %v, got %v", want, out.I16)
	}
	if buf.I16[0] != -10 {
		t.Error("Expected the input buffer to be left alone")
	}
	// rescaled range [-15, 105] mirrors 60 to 30
	if m.WindowCenter != 30 {
		t.Errorf("Expected window center 30, got %f", m.WindowCenter)
	}
}

// TestInvertColor verifies that color channels are inverted and alpha kept
func TestInvertColor(t *testing.T) {
	buf := models.NewPixelBuffer(1, 1, models.ColorChannels, models.UInt8)
	copy(buf.U8, []uint8{10, 20, 30, 255})

	out, _, err := invert{}.Process(buf, models.Metadata{Color: true})
	if err != nil {
		t.Fatalf("Failed to invert: %v", err)
	}
	if want := []uint8{245, 235, 225, 255}; !slices.Equal(out.U8, want) {
		t.Errorf("Expected %v, got %v", want, out.U8)
	}
}

// TestFlip verifies both axes on mono and color rasters
func TestFlip(t *testing.T) {
	mono := models.NewPixelBuffer(3, 2, models.MonoChannels, models.UInt16)
	copy(mono.U16, []uint16{1, 2, 3, 4, 5, 6})

	out, _, err := flip{horizontal: true}.Process(mono, models.Metadata{})
	if err != nil {
		t.Fatalf("Failed to flip: %v", err)
	}
	if want := []uint16{3, 2, 1, 6, 5, 4}; !slices.Equal(out.U16, want) {
		t.Errorf("Expected %v, got %v", want, out.U16)
	}
	out, _, _ = flip{}.Process(mono, models.Metadata{})
	if want := []uint16{4, 5, 6, 1, 2, 3}; !slices.Equal(out.U16, want) {
		t.Errorf("Expected %v, got %v", want, out.U16)
	}

	// pixels move with all four channels
	color := models.NewPixelBuffer(2, 1, models.ColorChannels, models.UInt8)
	copy(color.U8, []uint8{1, 2, 3, 4, 5, 6, 7, 8})
	out, _, _ = flip{horizontal: true}.Process(color, models.Metadata{})
	if want := []uint8{5, 6, 7, 8, 1, 2, 3, 4}; !slices.Equal(out.U8, want) {
		t.Errorf("Expected %v, got %v", want, out.U8)
	}
	if err := out.Validate(); err != nil {
		t.Errorf("Expected a valid buffer, got %v", err)
	}
}

type failing struct{}

var errFailing = errors.New("failing step")

func (failing) Process(*models.PixelBuffer, models.Metadata) (*models.PixelBuffer, models.Metadata, error) {
	return nil, models.Metadata{}, errFailing
}

// TestRegistry verifies custom processors and error propagation through a
// chain
func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register("fail", func(args ...string) (Processor, error) { return failing{}, nil })
	if names := r.Names(); !slices.Equal(names, []string{"fail", "flip", "invert"}) {
		t.Errorf("Expected [fail flip invert], got %v", names)
	}

	_, chain, err := r.Parse("mr|flip~vertical|fail~x")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if len(chain[1].Args) != 1 || chain[1].Args[0] != "x" {
		t.Errorf("Expected argument x, got %v", chain[1].Args)
	}

	buf := models.NewPixelBuffer(1, 1, models.MonoChannels, models.UInt8)
	if _, _, err := chain.Apply(buf, models.Metadata{}); !errors.Is(err, errFailing) {
		t.Errorf("Expected the step error, got %v", err)
	}

	// the default registry does not see processors of another one
	if _, _, err := Parse("mr|fail"); !errors.Is(err, ErrUnknownProcessor) {
		t.Errorf("Expected ErrUnknownProcessor, got %v", err)
	}

	var empty Chain
	if out, _, _ := empty.Apply(buf, models.Metadata{}); out != buf {
		t.Error("Expected an empty chain to return its input")
	}
}
