package labels

// Category is a source-scoped category identifier and its name. IDs are only
// unique within one source collection.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// BoundingBox is an axis-aligned box in source pixel coordinates.
type BoundingBox struct {
	XMin   float64
	YMin   float64
	Width  float64
	Height float64
}

// NormalizedBox is a box expressed as centre and size, each divided by the
// image width or height. All four values lie in [0,1] for a valid box.
type NormalizedBox struct {
	XCenter float64
	YCenter float64
	Width   float64
	Height  float64
}

// Array returns the box as (x_center, y_center, width, height).
func (b NormalizedBox) Array() [4]float64 {
	return [4]float64{b.XCenter, b.YCenter, b.Width, b.Height}
}

// Detection is one labelled object in an image.
type Detection struct {
	CategoryID int
	Box        NormalizedBox
}

// LabelRecord is the ordered list of detections for one image. An empty
// record is valid (identity-only images carry no box targets).
type LabelRecord []Detection

// UnifiedSample pairs an image in the unified store with its label file.
type UnifiedSample struct {
	Basename  string
	ImagePath string
	LabelPath string
}

// Person class indices.
const (
	NotPerson = 0
	Person    = 1
)

// Disposal class indices.
const (
	DisposalImproper = 0
	DisposalProper   = 1
)

// Target is the supervised training signal for one sample.
type Target struct {
	PersonBox     [4]float64
	PersonClass   int
	TrashClass    int
	DisposalClass int
}
