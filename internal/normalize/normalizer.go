// Package normalize converts heterogeneous source collections into the
// unified images/ + labels/ store.
//
// Each Source is converted by the converter for its Kind. Converters never
// drop a source image without recording an Issue in the returned Report, and
// category id translation is checked for the whole collection before the
// first output file is written.
package normalize

import (
	"fmt"

	"github.com/trashdetect/perception/internal/fsutil"
	"github.com/trashdetect/perception/internal/labels"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/perr"
	"github.com/trashdetect/perception/internal/security"
)

// Kind selects the converter for a source collection.
type Kind string

const (
	// KindCOCO is a COCO-style annotations.json plus image files.
	KindCOCO Kind = "coco"
	// KindIdentity is one directory per identity holding face images.
	KindIdentity Kind = "identity"
	// KindFlat is already split into images/ and labels/.
	KindFlat Kind = "flat"
)

// DefaultAnnotations is the COCO annotations file name under Source.Root.
const DefaultAnnotations = "annotations.json"

// Source describes one collection to merge.
type Source struct {
	Name        string
	Kind        Kind
	Root        string
	Annotations string // COCO only; relative to Root
	Prefix      string

	// CategoryMap translates native ids to global ids. Nil leaves ids as
	// they are, which for COCO also requires AllowNativeIDs.
	CategoryMap    labels.CategoryMap
	AllowNativeIDs bool
	// Clamp clips boxes that extend past the image instead of dropping the
	// image.
	Clamp bool
	// SkipExisting avoids re-copying an image whose output already exists
	// with the same size. Label files are always rewritten.
	SkipExisting bool
}

// Options configure a Normalizer.
type Options struct {
	// Taxonomy, when set, is used to check every CategoryMap before writing.
	Taxonomy *labels.Taxonomy
}

// Normalizer writes one or more sources into a unified store. A Normalizer
// is not safe for concurrent use; runs against the same output tree must be
// serialised by the caller.
type Normalizer struct {
	fs     fsutil.FileSystem
	layout labels.Layout
	opts   Options

	// owners maps an output basename to the source image that produced it
	// during this normalizer's lifetime.
	owners map[string]string
}

// NewNormalizer returns a Normalizer writing under outRoot.
func NewNormalizer(fs fsutil.FileSystem, outRoot string, opts Options) *Normalizer {
	return &Normalizer{
		fs:     fs,
		layout: labels.Layout{Root: outRoot},
		opts:   opts,
		owners: make(map[string]string),
	}
}

// Layout returns the output layout.
func (n *Normalizer) Layout() labels.Layout { return n.layout }

// Run converts src into the unified store. Fatal problems (unreadable
// annotations, unmapped category ids) return an error; per-image problems
// are recorded in the Report.
func (n *Normalizer) Run(src Source) (*Report, error) {
	if src.CategoryMap != nil && n.opts.Taxonomy != nil {
		if err := src.CategoryMap.Validate(n.opts.Taxonomy); err != nil {
			return nil, fmt.Errorf("collection %q: %w", src.Name, err)
		}
	}

	rep := &Report{Collection: src.Name, Kind: src.Kind}
	var err error
	switch src.Kind {
	case KindCOCO:
		err = n.runCOCO(src, rep)
	case KindIdentity:
		err = n.runIdentity(src, rep)
	case KindFlat:
		err = n.runFlat(src, rep)
	default:
		return nil, perr.Configf("collection %q: unknown source kind %q", src.Name, src.Kind)
	}
	if err != nil {
		return nil, err
	}

	monitoring.Logf("normalize: %s (%s): %d images, %d labels, %d skipped, %d issues",
		src.Name, src.Kind, rep.Images, rep.Labels, rep.Skipped, len(rep.Issues))
	return rep, nil
}

func (n *Normalizer) prepareOutput() error {
	if err := n.fs.MkdirAll(n.layout.ImagesPath(), 0o755); err != nil {
		return fmt.Errorf("create images dir: %w", err)
	}
	if err := n.fs.MkdirAll(n.layout.LabelsPath(), 0o755); err != nil {
		return fmt.Errorf("create labels dir: %w", err)
	}
	return nil
}

// outputName derives the flat output file name for a source-relative path.
func outputName(prefix, rel string) string {
	return security.SanitizeFilename(prefix + rel)
}

// claim records that srcPath owns the output basename of fileName. A second
// source image mapping to the same basename is refused.
func (n *Normalizer) claim(fileName, srcPath string) (string, bool) {
	stem := labels.Stem(fileName)
	owner, ok := n.owners[stem]
	if ok && owner != srcPath {
		return owner, false
	}
	n.owners[stem] = srcPath
	return "", true
}

// emit copies the image and writes its label record.
func (n *Normalizer) emit(src Source, srcImage, fileName string, label []byte, rep *Report) error {
	dstImage := n.layout.ImagePath(fileName)
	if !(src.SkipExisting && fsutil.SameSize(n.fs, srcImage, dstImage)) {
		if err := fsutil.CopyFile(n.fs, srcImage, dstImage); err != nil {
			return fmt.Errorf("copy image: %w", err)
		}
	}
	rep.Images++

	if err := n.fs.WriteFile(n.layout.LabelPath(fileName), label, 0o644); err != nil {
		return fmt.Errorf("write label: %w", err)
	}
	rep.Labels++
	return nil
}
