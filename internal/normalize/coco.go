package normalize

import (
	"encoding/json"
	"path/filepath"

	"github.com/trashdetect/perception/internal/fsutil"
	"github.com/trashdetect/perception/internal/labels"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/perr"
	"github.com/trashdetect/perception/internal/security"
)

type cocoFile struct {
	Images      []cocoImage       `json:"images"`
	Annotations []cocoAnnotation  `json:"annotations"`
	Categories  []labels.Category `json:"categories"`
}

type cocoImage struct {
	ID       int64   `json:"id"`
	FileName string  `json:"file_name"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

type cocoAnnotation struct {
	ID         int64     `json:"id"`
	ImageID    int64     `json:"image_id"`
	CategoryID int       `json:"category_id"`
	BBox       []float64 `json:"bbox"`
}

func (n *Normalizer) loadCOCO(src Source) (*cocoFile, error) {
	rel := src.Annotations
	if rel == "" {
		rel = DefaultAnnotations
	}
	path := filepath.Join(src.Root, rel)
	data, err := n.fs.ReadFile(path)
	if err != nil {
		return nil, perr.DataErr(path, err)
	}
	var doc cocoFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, perr.DataErr(path, err)
	}
	return &doc, nil
}

// checkCategories resolves every annotation's category before any output is
// written, so an unmapped id cannot leave a half-converted collection.
func checkCategories(src Source, doc *cocoFile) error {
	if src.CategoryMap == nil {
		if !src.AllowNativeIDs {
			return perr.Configf("collection %q: no category map and native ids not allowed", src.Name)
		}
		monitoring.Logf("normalize: warning: %s: writing native category ids without a map", src.Name)
		return nil
	}
	for _, a := range doc.Annotations {
		if _, err := src.CategoryMap.Global(a.CategoryID); err != nil {
			return perr.Configf("collection %q: annotation %d: native category %d has no global mapping",
				src.Name, a.ID, a.CategoryID)
		}
	}
	return nil
}

func (n *Normalizer) runCOCO(src Source, rep *Report) error {
	doc, err := n.loadCOCO(src)
	if err != nil {
		return err
	}
	if err := checkCategories(src, doc); err != nil {
		return err
	}

	byImage := make(map[int64][]cocoAnnotation, len(doc.Images))
	for _, a := range doc.Annotations {
		byImage[a.ImageID] = append(byImage[a.ImageID], a)
	}

	if err := n.prepareOutput(); err != nil {
		return err
	}

	for _, img := range doc.Images {
		anns := byImage[img.ID]
		if len(anns) == 0 {
			rep.Unlabelled++
			continue
		}
		if err := n.convertCOCOImage(src, img, anns, rep); err != nil {
			return err
		}
	}
	return nil
}

func (n *Normalizer) convertCOCOImage(src Source, img cocoImage, anns []cocoAnnotation, rep *Report) error {
	srcPath, err := security.SafeJoin(src.Root, img.FileName)
	if err != nil {
		rep.skip(img.FileName, "%v", err)
		return nil
	}
	if !fsutil.Exists(n.fs, srcPath) {
		rep.skip(img.FileName, "referenced image missing on disk")
		return nil
	}
	if img.Width <= 0 || img.Height <= 0 {
		rep.skip(img.FileName, "invalid image dimensions %gx%g", img.Width, img.Height)
		return nil
	}

	rec := make(labels.LabelRecord, 0, len(anns))
	for _, a := range anns {
		if len(a.BBox) != 4 {
			rep.skip(img.FileName, "annotation %d: bbox has %d values", a.ID, len(a.BBox))
			return nil
		}
		box := labels.BoundingBox{XMin: a.BBox[0], YMin: a.BBox[1], Width: a.BBox[2], Height: a.BBox[3]}
		nb, err := labels.Normalize(box, img.Width, img.Height, false)
		if err != nil && src.Clamp {
			nb, err = labels.Normalize(box, img.Width, img.Height, true)
			if err == nil {
				rep.note(img.FileName, "annotation %d: box clamped to image", a.ID)
			}
		}
		if err != nil {
			rep.skip(img.FileName, "annotation %d: %v", a.ID, err)
			return nil
		}
		cat := a.CategoryID
		if src.CategoryMap != nil {
			cat, _ = src.CategoryMap.Global(cat) // resolved in checkCategories
		}
		rec = append(rec, labels.Detection{CategoryID: cat, Box: nb})
	}

	name := outputName(src.Prefix, img.FileName)
	if owner, ok := n.claim(name, srcPath); !ok {
		rep.skip(img.FileName, "basename %q already produced by %s", labels.Stem(name), owner)
		return nil
	}
	return n.emit(src, srcPath, name, rec.Bytes(), rep)
}
