package normalize

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashdetect/perception/internal/fsutil"
	"github.com/trashdetect/perception/internal/labels"
	"github.com/trashdetect/perception/internal/perr"
)

const outRoot = "out"

func put(t *testing.T, fs *fsutil.MemoryFileSystem, path, body string) {
	t.Helper()
	require.NoError(t, fs.WriteFile(path, []byte(body), 0o644))
}

func read(t *testing.T, fs *fsutil.MemoryFileSystem, path string) string {
	t.Helper()
	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func outputFiles(fs *fsutil.MemoryFileSystem) []string {
	var out []string
	for _, f := range fs.Files() {
		if strings.HasPrefix(f, outRoot+"/") {
			out = append(out, strings.TrimPrefix(f, outRoot+"/"))
		}
	}
	return out
}

// assertParity checks that images/ and labels/ pair up one to one.
func assertParity(t *testing.T, fs *fsutil.MemoryFileSystem) {
	t.Helper()
	layout := labels.Layout{Root: outRoot}
	imgs, err := fs.ReadDir(layout.ImagesPath())
	require.NoError(t, err)
	lbls, err := fs.ReadDir(layout.LabelsPath())
	require.NoError(t, err)

	var imgStems, lblStems []string
	for _, e := range imgs {
		imgStems = append(imgStems, labels.Stem(e.Name()))
	}
	for _, e := range lbls {
		lblStems = append(lblStems, labels.Stem(e.Name()))
	}
	if diff := cmp.Diff(imgStems, lblStems); diff != "" {
		t.Errorf("images/labels parity mismatch (-images +labels):\n%s", diff)
	}
}

const tacoJSON = `{
  "images": [
    {"id": 1, "file_name": "batch_1/000003.jpg", "width": 100, "height": 100},
    {"id": 2, "file_name": "batch_1/000004.jpg", "width": 100, "height": 100}
  ],
  "annotations": [
    {"id": 10, "image_id": 1, "category_id": 7, "bbox": [10, 10, 20, 20]}
  ],
  "categories": [{"id": 7, "name": "Bottle cap"}]
}`

func tacoSource(fs *fsutil.MemoryFileSystem, t *testing.T) Source {
	put(t, fs, "src/taco/annotations.json", tacoJSON)
	put(t, fs, "src/taco/batch_1/000003.jpg", "jpeg-3")
	put(t, fs, "src/taco/batch_1/000004.jpg", "jpeg-4")
	return Source{
		Name:        "taco",
		Kind:        KindCOCO,
		Root:        "src/taco",
		CategoryMap: labels.CategoryMap{7: 3},
	}
}

func TestCOCOKnownBox(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	src := tacoSource(fs, t)

	rep, err := NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Images)
	assert.Equal(t, 1, rep.Labels)
	assert.Equal(t, 1, rep.Unlabelled)
	assert.Empty(t, rep.Issues)

	assert.Equal(t, []string{"images/batch_1_000003.jpg", "labels/batch_1_000003.txt"}, outputFiles(fs))
	assert.Equal(t, "3 0.2 0.2 0.2 0.2\n", read(t, fs, "out/labels/batch_1_000003.txt"))
	assert.Equal(t, "jpeg-3", read(t, fs, "out/images/batch_1_000003.jpg"))
	assertParity(t, fs)
}

func TestCOCOUnmappedCategoryWritesNothing(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	src := tacoSource(fs, t)
	src.CategoryMap = labels.CategoryMap{8: 3}

	_, err := NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrConfig))
	assert.Empty(t, outputFiles(fs))
}

func TestCOCONativeIDs(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	src := tacoSource(fs, t)
	src.CategoryMap = nil

	_, err := NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrConfig))

	src.AllowNativeIDs = true
	_, err = NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.NoError(t, err)
	assert.Equal(t, "7 0.2 0.2 0.2 0.2\n", read(t, fs, "out/labels/batch_1_000003.txt"))
}

func TestCOCOMapCheckedAgainstTaxonomy(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	src := tacoSource(fs, t)
	src.CategoryMap = labels.CategoryMap{7: 500}

	_, err := NewNormalizer(fs, outRoot, Options{Taxonomy: labels.DefaultTaxonomy(6)}).Run(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrConfig))
	assert.Empty(t, outputFiles(fs))
}

func TestCOCOAnnotationFileErrors(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	src := Source{Name: "taco", Kind: KindCOCO, Root: "src/taco", AllowNativeIDs: true}

	_, err := NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrData))
	assert.Equal(t, filepath.Join("src/taco", DefaultAnnotations), perr.PathOf(err))

	put(t, fs, "src/taco/annotations.json", `{"images": [`)
	_, err = NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrData))
}

func TestCOCOPerImageIssues(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	put(t, fs, "src/c/annotations.json", `{
  "images": [
    {"id": 1, "file_name": "gone.jpg", "width": 100, "height": 100},
    {"id": 2, "file_name": "wide.jpg", "width": 100, "height": 100},
    {"id": 3, "file_name": "flat.jpg", "width": 0, "height": 100},
    {"id": 4, "file_name": "../escape.jpg", "width": 100, "height": 100}
  ],
  "annotations": [
    {"id": 1, "image_id": 1, "category_id": 1, "bbox": [0, 0, 10, 10]},
    {"id": 2, "image_id": 2, "category_id": 1, "bbox": [90, 0, 20, 10]},
    {"id": 3, "image_id": 3, "category_id": 1, "bbox": [0, 0, 10, 10]},
    {"id": 4, "image_id": 4, "category_id": 1, "bbox": [0, 0, 10, 10]}
  ]
}`)
	put(t, fs, "src/c/wide.jpg", "w")
	put(t, fs, "src/c/flat.jpg", "f")
	src := Source{Name: "c", Kind: KindCOCO, Root: "src/c", CategoryMap: labels.CategoryMap{1: 5}}

	rep, err := NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Images)
	assert.Equal(t, 4, rep.Skipped)
	require.Len(t, rep.Issues, 4)
	assert.Equal(t, "gone.jpg", rep.Issues[0].Image)
	assert.Contains(t, rep.Issues[0].Reason, "missing")
	assert.Equal(t, "wide.jpg", rep.Issues[1].Image)
	assert.Contains(t, rep.Issues[2].Reason, "dimensions")
	assert.Contains(t, rep.Issues[3].Reason, "traversal")

	// Clamping keeps the overhanging box.
	src.Clamp = true
	rep, err = NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Images)
	assert.Equal(t, "5 0.95 0.05 0.1 0.1\n", read(t, fs, "out/labels/wide.txt"))
	assertParity(t, fs)
}

func TestIdentityCollection(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	put(t, fs, "src/lfw/Ada_Lovelace/Ada_Lovelace_0001.jpg", "a1")
	put(t, fs, "src/lfw/Ada_Lovelace/Ada_Lovelace_0002.jpg", "a2")
	put(t, fs, "src/lfw/Alan_Turing/Alan_Turing_0001.jpg", "t1")
	put(t, fs, "src/lfw/Alan_Turing/notes.md", "not an image")
	put(t, fs, "src/lfw/README", "top-level file")

	rep, err := NewNormalizer(fs, outRoot, Options{}).Run(Source{Name: "lfw", Kind: KindIdentity, Root: "src/lfw"})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Images)
	assert.Equal(t, 3, rep.Labels)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, filepath.Join("Alan_Turing", "notes.md"), rep.Issues[0].Image)
	assert.Equal(t, "", read(t, fs, "out/labels/Ada_Lovelace_0001.txt"))
	assert.Equal(t, "t1", read(t, fs, "out/images/Alan_Turing_0001.jpg"))
	assertParity(t, fs)
}

func TestFlatCollection(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	put(t, fs, "src/hd/images/p1.png", "p1")
	put(t, fs, "src/hd/labels/p1.txt", "0 0.5 0.5 0.25 0.5\n")
	put(t, fs, "src/hd/images/p2.png", "p2")
	put(t, fs, "src/hd/labels/p2.txt", "0 0.5 0.5 1.5 0.5\n")
	put(t, fs, "src/hd/images/p3.png", "p3")

	src := Source{Name: "hd", Kind: KindFlat, Root: "src/hd"}
	rep, err := NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Images)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, "0 0.5 0.5 0.25 0.5\n", read(t, fs, "out/labels/p1.txt"))
	assertParity(t, fs)

	// With a map the ids are rewritten.
	src.CategoryMap = labels.CategoryMap{0: 0}
	put(t, fs, "src/hd/labels/p1.txt", "0 0.5 0.5 0.25 0.5\r\n")
	_, err = NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.NoError(t, err)
	assert.Equal(t, "0 0.5 0.5 0.25 0.5\n", read(t, fs, "out/labels/p1.txt"))

	// An unmapped id aborts the collection.
	src.CategoryMap = labels.CategoryMap{9: 0}
	_, err = NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrConfig))
}

func TestBasenameCollisionAcrossCollections(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	put(t, fs, "src/a/images/x.jpg", "from-a")
	put(t, fs, "src/a/labels/x.txt", "")
	put(t, fs, "src/b/images/x.jpg", "from-b")
	put(t, fs, "src/b/labels/x.txt", "")

	n := NewNormalizer(fs, outRoot, Options{})
	_, err := n.Run(Source{Name: "a", Kind: KindFlat, Root: "src/a"})
	require.NoError(t, err)
	rep, err := n.Run(Source{Name: "b", Kind: KindFlat, Root: "src/b"})
	require.NoError(t, err)

	assert.Equal(t, 0, rep.Images)
	require.Len(t, rep.Issues, 1)
	assert.Contains(t, rep.Issues[0].Reason, "already produced")
	assert.Equal(t, "from-a", read(t, fs, "out/images/x.jpg"))

	// A prefix keeps both.
	rep, err = n.Run(Source{Name: "b", Kind: KindFlat, Root: "src/b", Prefix: "b_"})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Images)
	assert.Equal(t, "from-b", read(t, fs, "out/images/b_x.jpg"))
	assertParity(t, fs)
}

func TestRerunIsIdempotent(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	src := tacoSource(fs, t)

	_, err := NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.NoError(t, err)
	first := outputFiles(fs)

	src.SkipExisting = true
	_, err = NewNormalizer(fs, outRoot, Options{}).Run(src)
	require.NoError(t, err)

	assert.Equal(t, first, outputFiles(fs))
	assert.Equal(t, "3 0.2 0.2 0.2 0.2\n", read(t, fs, "out/labels/batch_1_000003.txt"))
}

func TestUnknownKind(t *testing.T) {
	_, err := NewNormalizer(fsutil.NewMemoryFileSystem(), outRoot, Options{}).Run(Source{Name: "x", Kind: "voc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, perr.ErrConfig))
}
