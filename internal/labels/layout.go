package labels

import (
	"path/filepath"
	"strings"
)

// Subdirectory names of the unified dataset store.
const (
	ImagesDir = "images"
	LabelsDir = "labels"
	LabelExt  = ".txt"
)

// Layout resolves paths inside a unified dataset root:
//
//	<root>/images/<basename>.<ext>
//	<root>/labels/<basename>.txt
type Layout struct {
	Root string
}

// ImagesPath returns the images subtree.
func (l Layout) ImagesPath() string { return filepath.Join(l.Root, ImagesDir) }

// LabelsPath returns the labels subtree.
func (l Layout) LabelsPath() string { return filepath.Join(l.Root, LabelsDir) }

// ImagePath returns the path of an image file name (basename plus extension).
func (l Layout) ImagePath(fileName string) string {
	return filepath.Join(l.ImagesPath(), fileName)
}

// LabelPath returns the label file for an image file name.
func (l Layout) LabelPath(fileName string) string {
	return filepath.Join(l.LabelsPath(), Stem(fileName)+LabelExt)
}

// Sample builds the UnifiedSample for an image file name.
func (l Layout) Sample(fileName string) UnifiedSample {
	return UnifiedSample{
		Basename:  Stem(fileName),
		ImagePath: l.ImagePath(fileName),
		LabelPath: l.LabelPath(fileName),
	}
}

// Stem strips the directory and extension from a file name.
func Stem(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// IsImageFile reports whether the extension is one the dataset can decode.
func IsImageFile(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}
