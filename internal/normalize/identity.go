package normalize

import (
	"path/filepath"

	"github.com/trashdetect/perception/internal/labels"
	"github.com/trashdetect/perception/internal/perr"
)

// runIdentity copies every image below <root>/<identity>/ and writes an
// empty label file for it. Identity collections carry no boxes.
func (n *Normalizer) runIdentity(src Source, rep *Report) error {
	people, err := n.fs.ReadDir(src.Root)
	if err != nil {
		return perr.DataErr(src.Root, err)
	}
	if err := n.prepareOutput(); err != nil {
		return err
	}

	for _, person := range people {
		if !person.IsDir() {
			continue
		}
		dir := filepath.Join(src.Root, person.Name())
		files, err := n.fs.ReadDir(dir)
		if err != nil {
			return perr.DataErr(dir, err)
		}
		for _, f := range files {
			rel := filepath.Join(person.Name(), f.Name())
			if f.IsDir() {
				continue
			}
			if !labels.IsImageFile(f.Name()) {
				rep.skip(rel, "not a supported image file")
				continue
			}
			srcPath := filepath.Join(dir, f.Name())
			name := outputName(src.Prefix, f.Name())
			if owner, ok := n.claim(name, srcPath); !ok {
				rep.skip(rel, "basename %q already produced by %s", labels.Stem(name), owner)
				continue
			}
			if err := n.emit(src, srcPath, name, nil, rep); err != nil {
				return err
			}
		}
	}
	return nil
}
