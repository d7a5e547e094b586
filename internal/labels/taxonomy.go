package labels

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/trashdetect/perception/internal/perr"
)

var validate = validator.New()

// Role says which target field a global category feeds.
type Role string

const (
	RolePerson           Role = "person"
	RoleTrash            Role = "trash"
	RoleDisposalProper   Role = "disposal_proper"
	RoleDisposalImproper Role = "disposal_improper"
	RoleIgnore           Role = "ignore"
)

// GlobalCategory is one entry of the merged taxonomy.
type GlobalCategory struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Role       Role   `json:"role" validate:"oneof=person trash disposal_proper disposal_improper ignore"`
	TrashClass *int   `json:"trash_class,omitempty" validate:"required_if=Role trash"`
}

// ErrIncompleteTarget marks a label record that lacks a trash or disposal
// detection and therefore cannot produce a full training target.
var ErrIncompleteTarget = errors.New("incomplete target")

// Taxonomy is the single global category space every collection is mapped
// into before merge.
type Taxonomy struct {
	Categories []GlobalCategory `json:"categories" validate:"dive"`

	byID     map[int]GlobalCategory
	numTrash int
}

// DefaultTaxonomy returns the built-in layout for numTrash trash classes:
// id 0 person, 1 improper disposal, 2 proper disposal, then one category per
// trash class starting at id 3.
func DefaultTaxonomy(numTrash int) *Taxonomy {
	cats := []GlobalCategory{
		{ID: 0, Name: "person", Role: RolePerson},
		{ID: 1, Name: "disposal_improper", Role: RoleDisposalImproper},
		{ID: 2, Name: "disposal_proper", Role: RoleDisposalProper},
	}
	for i := 0; i < numTrash; i++ {
		tc := i
		cats = append(cats, GlobalCategory{ID: TrashCategoryOffset + i, Name: fmt.Sprintf("trash_%d", i), Role: RoleTrash, TrashClass: &tc})
	}
	t := &Taxonomy{Categories: cats}
	if err := t.index(); err != nil {
		panic(err) // built-in layout is always consistent
	}
	return t
}

// TrashCategoryOffset is the global id of trash class 0 in DefaultTaxonomy.
const TrashCategoryOffset = 3

// ParseTaxonomy decodes and validates a taxonomy document.
func ParseTaxonomy(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, perr.Configf("failed to parse taxonomy JSON: %v", err)
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadTaxonomy reads a taxonomy JSON file.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, perr.DataErr(path, err)
	}
	return ParseTaxonomy(data)
}

func (t *Taxonomy) index() error {
	if err := validate.Struct(t); err != nil {
		return &perr.Error{Kind: perr.ErrConfig, Msg: "invalid taxonomy", Err: err}
	}
	t.byID = make(map[int]GlobalCategory, len(t.Categories))
	var trash []int
	for _, c := range t.Categories {
		if _, dup := t.byID[c.ID]; dup {
			return perr.Configf("duplicate category id %d", c.ID)
		}
		if c.Role == RoleTrash {
			trash = append(trash, *c.TrashClass)
		}
		t.byID[c.ID] = c
	}
	sort.Ints(trash)
	for i, tc := range trash {
		if tc != i {
			return perr.Configf("trash classes must be contiguous from 0, got %v", trash)
		}
	}
	t.numTrash = len(trash)
	return nil
}

// NumTrashClasses is the width of the trash classification head this
// taxonomy trains.
func (t *Taxonomy) NumTrashClasses() int { return t.numTrash }

// Lookup returns the global category with the given id.
func (t *Taxonomy) Lookup(id int) (GlobalCategory, bool) {
	c, ok := t.byID[id]
	return c, ok
}

// Target derives the training target from a label record. The first
// detection of each role wins. A record without a person detection yields a
// negative person sample with a zero box; a record missing a trash or
// disposal detection returns an ErrData wrapping ErrIncompleteTarget.
func (t *Taxonomy) Target(rec LabelRecord, path string) (Target, error) {
	var tgt Target
	tgt.PersonClass = NotPerson
	havePerson, haveTrash, haveDisposal := false, false, false

	for _, d := range rec {
		c, ok := t.byID[d.CategoryID]
		if !ok {
			return Target{}, perr.Dataf(path, "category %d not in taxonomy", d.CategoryID)
		}
		switch c.Role {
		case RolePerson:
			if !havePerson {
				tgt.PersonBox = d.Box.Array()
				tgt.PersonClass = Person
				havePerson = true
			}
		case RoleTrash:
			if !haveTrash {
				tgt.TrashClass = *c.TrashClass
				haveTrash = true
			}
		case RoleDisposalProper, RoleDisposalImproper:
			if !haveDisposal {
				tgt.DisposalClass = DisposalImproper
				if c.Role == RoleDisposalProper {
					tgt.DisposalClass = DisposalProper
				}
				haveDisposal = true
			}
		}
	}

	if !haveTrash || !haveDisposal {
		return Target{}, &perr.Error{
			Kind: perr.ErrData,
			Path: path,
			Msg:  fmt.Sprintf("trash=%t disposal=%t", haveTrash, haveDisposal),
			Err:  ErrIncompleteTarget,
		}
	}
	return tgt, nil
}

// CategoryMap translates one collection's native category ids into global
// taxonomy ids.
type CategoryMap map[int]int

// Global returns the global id for a native id.
func (m CategoryMap) Global(native int) (int, error) {
	g, ok := m[native]
	if !ok {
		return 0, perr.Configf("native category %d has no global mapping", native)
	}
	return g, nil
}

// Validate checks that every mapped id exists in the taxonomy.
func (m CategoryMap) Validate(t *Taxonomy) error {
	natives := make([]int, 0, len(m))
	for n := range m {
		natives = append(natives, n)
	}
	sort.Ints(natives)
	for _, n := range natives {
		if _, ok := t.Lookup(m[n]); !ok {
			return perr.Configf("native category %d maps to unknown global id %d", n, m[n])
		}
	}
	return nil
}
