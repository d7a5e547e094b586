// Package dataset serves (image, target) pairs from a unified store.
//
// The index is built once by Open from <root>/images; every image must have a
// label file under <root>/labels. Get decodes and preprocesses lazily, so
// unreadable images surface as ErrData at the point of access.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/trashdetect/perception/internal/fsutil"
	"github.com/trashdetect/perception/internal/labels"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/perr"
)

// Policy decides what happens to samples whose label record cannot produce
// a full training target (no trash or no disposal detection).
type Policy int

const (
	// PolicyStrict keeps every sample; Get returns ErrData for incomplete
	// ones.
	PolicyStrict Policy = iota
	// PolicyExcludeIncomplete drops incomplete samples while building the
	// index.
	PolicyExcludeIncomplete
)

func (p Policy) String() string {
	switch p {
	case PolicyStrict:
		return "strict"
	case PolicyExcludeIncomplete:
		return "exclude_incomplete"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy maps the config spelling of a policy to its value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "strict":
		return PolicyStrict, nil
	case "exclude_incomplete":
		return PolicyExcludeIncomplete, nil
	}
	return 0, perr.Configf("unknown incomplete-sample policy %q", s)
}

// Options configure Open. The zero value reads from the OS filesystem with
// PolicyStrict and DefaultTransform.
type Options struct {
	FS        fsutil.FileSystem
	Policy    Policy
	Sort      bool
	Transform *Transform
}

// Sample is one preprocessed image with its target.
type Sample struct {
	Basename string
	Image    []float64
	Target   labels.Target
}

// Dataset is a read-only index over a unified store.
type Dataset struct {
	fs        fsutil.FileSystem
	tax       *labels.Taxonomy
	transform Transform
	samples   []labels.UnifiedSample
	excluded  int
}

// Open builds the index for the store at root.
func Open(root string, tax *labels.Taxonomy, opts Options) (*Dataset, error) {
	if tax == nil {
		return nil, perr.Configf("dataset: taxonomy is required")
	}
	ds := &Dataset{fs: opts.FS, tax: tax, transform: DefaultTransform()}
	if ds.fs == nil {
		ds.fs = fsutil.OSFileSystem{}
	}
	if opts.Transform != nil {
		ds.transform = *opts.Transform
	}
	if err := ds.transform.Validate(); err != nil {
		return nil, perr.Configf("dataset: %v", err)
	}

	layout := labels.Layout{Root: root}
	entries, err := ds.fs.ReadDir(layout.ImagesPath())
	if err != nil {
		return nil, perr.DataErr(layout.ImagesPath(), err)
	}
	for _, e := range entries {
		if e.IsDir() || !labels.IsImageFile(e.Name()) {
			continue
		}
		s := layout.Sample(e.Name())
		if !fsutil.Exists(ds.fs, s.LabelPath) {
			return nil, perr.Dataf(s.LabelPath, "label file missing for image %s", e.Name())
		}
		if opts.Policy == PolicyExcludeIncomplete {
			if _, err := ds.target(s); err != nil {
				if errors.Is(err, labels.ErrIncompleteTarget) {
					ds.excluded++
					continue
				}
				return nil, err
			}
		}
		ds.samples = append(ds.samples, s)
	}
	if opts.Sort {
		sort.Slice(ds.samples, func(i, j int) bool { return ds.samples[i].Basename < ds.samples[j].Basename })
	}
	if ds.excluded > 0 {
		monitoring.Logf("dataset: %s: excluded %d incomplete samples, %d remain", root, ds.excluded, len(ds.samples))
	}
	return ds, nil
}

// Len returns the number of indexed samples.
func (d *Dataset) Len() int { return len(d.samples) }

// Excluded returns how many samples PolicyExcludeIncomplete dropped.
func (d *Dataset) Excluded() int { return d.excluded }

// Transform returns the preprocessing applied by Get.
func (d *Dataset) Transform() Transform { return d.transform }

// NumTrashClasses is the trash class count of the taxonomy backing targets.
func (d *Dataset) NumTrashClasses() int { return d.tax.NumTrashClasses() }

// Entry returns the paths of sample i without loading it.
func (d *Dataset) Entry(i int) labels.UnifiedSample { return d.samples[i] }

// Get loads sample i. Corrupt images, malformed labels and incomplete
// targets return ErrData naming the offending file.
func (d *Dataset) Get(i int) (*Sample, error) {
	if i < 0 || i >= len(d.samples) {
		return nil, fmt.Errorf("dataset: index %d out of range [0,%d)", i, len(d.samples))
	}
	s := d.samples[i]
	tgt, err := d.target(s)
	if err != nil {
		return nil, err
	}

	f, err := d.fs.Open(s.ImagePath)
	if err != nil {
		return nil, perr.DataErr(s.ImagePath, err)
	}
	defer f.Close()
	img, err := DecodeImage(f)
	if err != nil {
		return nil, perr.DataErr(s.ImagePath, err)
	}

	return &Sample{Basename: s.Basename, Image: d.transform.Apply(img), Target: tgt}, nil
}

func (d *Dataset) target(s labels.UnifiedSample) (labels.Target, error) {
	data, err := d.fs.ReadFile(s.LabelPath)
	if err != nil {
		return labels.Target{}, perr.DataErr(s.LabelPath, err)
	}
	rec, err := labels.ParseRecord(bytes.NewReader(data), s.LabelPath)
	if err != nil {
		return labels.Target{}, err
	}
	return d.tax.Target(rec, s.LabelPath)
}
