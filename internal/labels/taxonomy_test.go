package labels

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trashdetect/perception/internal/perr"
)

func box(x, y, w, h float64) NormalizedBox {
	return NormalizedBox{XCenter: x, YCenter: y, Width: w, Height: h}
}

func TestDefaultTaxonomy(t *testing.T) {
	tax := DefaultTaxonomy(6)
	assert.Equal(t, 6, tax.NumTrashClasses())

	c, ok := tax.Lookup(TrashCategoryOffset + 5)
	require.True(t, ok)
	assert.Equal(t, RoleTrash, c.Role)
	assert.Equal(t, 5, *c.TrashClass)
}

func TestTaxonomyTarget(t *testing.T) {
	tax := DefaultTaxonomy(4)

	t.Run("complete record", func(t *testing.T) {
		rec := LabelRecord{
			{CategoryID: TrashCategoryOffset + 2, Box: box(0.3, 0.3, 0.1, 0.1)},
			{CategoryID: 0, Box: box(0.5, 0.4, 0.2, 0.6)},
			{CategoryID: 2, Box: box(0.5, 0.5, 1, 1)},
			{CategoryID: 0, Box: box(0.9, 0.9, 0.1, 0.1)},
		}
		tgt, err := tax.Target(rec, "r.txt")
		require.NoError(t, err)
		assert.Equal(t, Person, tgt.PersonClass)
		assert.Equal(t, [4]float64{0.5, 0.4, 0.2, 0.6}, tgt.PersonBox)
		assert.Equal(t, 2, tgt.TrashClass)
		assert.Equal(t, DisposalProper, tgt.DisposalClass)
	})

	t.Run("no person is a negative sample", func(t *testing.T) {
		rec := LabelRecord{
			{CategoryID: TrashCategoryOffset, Box: box(0.3, 0.3, 0.1, 0.1)},
			{CategoryID: 1, Box: box(0.5, 0.5, 1, 1)},
		}
		tgt, err := tax.Target(rec, "r.txt")
		require.NoError(t, err)
		assert.Equal(t, NotPerson, tgt.PersonClass)
		assert.Equal(t, [4]float64{}, tgt.PersonBox)
		assert.Equal(t, DisposalImproper, tgt.DisposalClass)
	})

	t.Run("identity-only record is incomplete", func(t *testing.T) {
		_, err := tax.Target(nil, "face.txt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, perr.ErrData))
		assert.True(t, errors.Is(err, ErrIncompleteTarget))
	})

	t.Run("unknown category", func(t *testing.T) {
		_, err := tax.Target(LabelRecord{{CategoryID: 99, Box: box(0.5, 0.5, 0.1, 0.1)}}, "r.txt")
		require.Error(t, err)
		assert.True(t, errors.Is(err, perr.ErrData))
		assert.False(t, errors.Is(err, ErrIncompleteTarget))
	})
}

func TestParseTaxonomy(t *testing.T) {
	doc := `{"categories":[
		{"id":10,"name":"person","role":"person"},
		{"id":11,"name":"bin_ok","role":"disposal_proper"},
		{"id":12,"name":"litter","role":"disposal_improper"},
		{"id":20,"name":"glass","role":"trash","trash_class":1},
		{"id":21,"name":"paper","role":"trash","trash_class":0}
	]}`
	tax, err := ParseTaxonomy([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, 2, tax.NumTrashClasses())

	bad := map[string]string{
		"duplicate id":   `{"categories":[{"id":1,"role":"person"},{"id":1,"role":"ignore"}]}`,
		"unknown role":   `{"categories":[{"id":1,"role":"dog"}]}`,
		"gap in classes": `{"categories":[{"id":1,"role":"trash","trash_class":1}]}`,
		"missing class":  `{"categories":[{"id":1,"role":"trash"}]}`,
		"not json":       `{`,
	}
	for name, src := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTaxonomy([]byte(src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, perr.ErrConfig))
		})
	}

	_, err = ParseTaxonomy([]byte(`{"categories":[{"id":1,"role":"dog"}]}`))
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "Role", verrs[0].Field())
	assert.Equal(t, "oneof", verrs[0].Tag())
}

func TestCategoryMap(t *testing.T) {
	tax := DefaultTaxonomy(2)
	m := CategoryMap{1: 0, 7: TrashCategoryOffset + 1}
	require.NoError(t, m.Validate(tax))

	rec := LabelRecord{{CategoryID: 7, Box: box(0.5, 0.5, 0.1, 0.1)}}
	out, err := rec.Remap(m)
	require.NoError(t, err)
	assert.Equal(t, TrashCategoryOffset+1, out[0].CategoryID)
	assert.Equal(t, 7, rec[0].CategoryID, "Remap must not mutate the input")

	_, err = LabelRecord{{CategoryID: 3}}.Remap(m)
	assert.True(t, errors.Is(err, perr.ErrConfig))

	assert.Error(t, CategoryMap{1: 500}.Validate(tax))
}
