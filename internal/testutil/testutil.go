// Package testutil provides shared fixtures for tests that need a unified
// dataset store on disk.
package testutil

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trashdetect/perception/internal/labels"
)

// Store is a unified dataset store rooted in a test temp directory.
type Store struct {
	t      *testing.T
	Layout labels.Layout
}

// NewStore creates an empty store with images/ and labels/ directories.
func NewStore(t *testing.T) *Store {
	t.Helper()
	s := &Store{t: t, Layout: labels.Layout{Root: t.TempDir()}}
	for _, dir := range []string{s.Layout.ImagesPath(), s.Layout.LabelsPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return s
}

// Root returns the store root.
func (s *Store) Root() string { return s.Layout.Root }

// Add writes a solid-colour PNG named fileName and a label file containing
// lines.
func (s *Store) Add(fileName string, w, h int, c color.Color, lines ...string) {
	s.t.Helper()
	WritePNG(s.t, s.Layout.ImagePath(fileName), SolidImage(w, h, c))
	s.WriteLabel(fileName, lines...)
}

// WriteLabel writes the label file for fileName.
func (s *Store) WriteLabel(fileName string, lines ...string) {
	s.t.Helper()
	body := ""
	if len(lines) > 0 {
		body = strings.Join(lines, "\n") + "\n"
	}
	if err := os.WriteFile(s.Layout.LabelPath(fileName), []byte(body), 0o644); err != nil {
		s.t.Fatalf("write label: %v", err)
	}
}

// AddRaw writes fileName under images/ with arbitrary bytes, for corrupt
// image cases.
func (s *Store) AddRaw(fileName string, data []byte, lines ...string) {
	s.t.Helper()
	if err := os.WriteFile(s.Layout.ImagePath(fileName), data, 0o644); err != nil {
		s.t.Fatalf("write image: %v", err)
	}
	s.WriteLabel(fileName, lines...)
}

// SolidImage returns a w x h image filled with c.
func SolidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// CompleteLabel returns label lines that yield a full target under
// labels.DefaultTaxonomy: an optional person box, one trash detection of
// trashClass and one disposal detection.
func CompleteLabel(trashClass int, proper, person bool) []string {
	var lines []string
	if person {
		lines = append(lines, "0 0.5 0.5 0.4 0.8")
	}
	lines = append(lines, fmt.Sprintf("%d 0.3 0.7 0.1 0.1", labels.TrashCategoryOffset+trashClass))
	disposal := 1
	if proper {
		disposal = 2
	}
	lines = append(lines, fmt.Sprintf("%d 0.3 0.7 0.1 0.1", disposal))
	return lines
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}
