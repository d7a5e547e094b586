package normalize

import (
	"bytes"
	"path/filepath"

	"github.com/trashdetect/perception/internal/fsutil"
	"github.com/trashdetect/perception/internal/labels"
	"github.com/trashdetect/perception/internal/perr"
)

type flatPair struct {
	image, label string
	name         string
	raw          []byte
	rec          labels.LabelRecord
}

// runFlat merges a collection that already has parallel images/ and labels/
// trees. Every label line is validated before anything is written; files are
// copied byte-for-byte unless a CategoryMap asks for id translation.
func (n *Normalizer) runFlat(src Source, rep *Report) error {
	in := labels.Layout{Root: src.Root}
	files, err := n.fs.ReadDir(in.ImagesPath())
	if err != nil {
		return perr.DataErr(in.ImagesPath(), err)
	}

	var pairs []flatPair
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if !labels.IsImageFile(f.Name()) {
			rep.skip(f.Name(), "not a supported image file")
			continue
		}
		p := flatPair{
			image: in.ImagePath(f.Name()),
			label: in.LabelPath(f.Name()),
			name:  outputName(src.Prefix, f.Name()),
		}
		if !fsutil.Exists(n.fs, p.label) {
			rep.skip(f.Name(), "label file %s missing", filepath.Base(p.label))
			continue
		}
		p.raw, err = n.fs.ReadFile(p.label)
		if err != nil {
			return perr.DataErr(p.label, err)
		}
		p.rec, err = labels.ParseRecord(bytes.NewReader(p.raw), p.label)
		if err != nil {
			rep.skip(f.Name(), "%v", err)
			continue
		}
		if src.CategoryMap != nil {
			if p.rec, err = p.rec.Remap(src.CategoryMap); err != nil {
				return perr.Configf("collection %q: %s: %v", src.Name, p.label, err)
			}
		}
		pairs = append(pairs, p)
	}

	if err := n.prepareOutput(); err != nil {
		return err
	}
	for _, p := range pairs {
		if owner, ok := n.claim(p.name, p.image); !ok {
			rep.skip(filepath.Base(p.image), "basename %q already produced by %s", labels.Stem(p.name), owner)
			continue
		}
		label := p.raw
		if src.CategoryMap != nil {
			label = p.rec.Bytes()
		}
		if err := n.emit(src, p.image, p.name, label, rep); err != nil {
			return err
		}
	}
	return nil
}
