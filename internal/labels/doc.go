// Package labels owns the unified annotation data model.
//
// Responsibilities: the box types and YOLO-style normalisation, the
// one-line-per-detection label file format, the on-disk layout of the unified
// dataset store, and the global category taxonomy that turns a label record
// into a training target.
//
// No image decoding and no filesystem walking happen here; the normalize and
// dataset packages build on these types.
package labels
