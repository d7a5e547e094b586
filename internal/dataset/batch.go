package dataset

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/trashdetect/perception/internal/labels"
)

// Batch is a stack of samples ready for the model. Row i of every matrix and
// element i of every slice belong to the same sample.
type Batch struct {
	Basenames []string
	Images    *mat.Dense // B x 3*S*S
	BBoxes    *mat.Dense // B x 4
	Person    []int
	Trash     []int
	Disposal  []int
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int { return len(b.Basenames) }

// Batches returns one epoch's worth of index batches. With shuffle set the
// order is a fresh permutation drawn from rng; otherwise it is index order.
// The last batch may be short. Each call starts a new epoch.
func (d *Dataset) Batches(shuffle bool, batchSize int, rng *rand.Rand) [][]int {
	n := d.Len()
	if n == 0 || batchSize <= 0 {
		return nil
	}
	var order []int
	if shuffle {
		order = rng.Perm(n)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}
	out := make([][]int, 0, (n+batchSize-1)/batchSize)
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		out = append(out, order[start:end])
	}
	return out
}

// LoadBatch loads and stacks the samples at indices.
func (d *Dataset) LoadBatch(indices []int) (*Batch, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("dataset: empty batch")
	}
	b := newBatch(len(indices), d.transform.Width())
	for row, idx := range indices {
		s, err := d.Get(idx)
		if err != nil {
			return nil, err
		}
		b.Basenames[row] = s.Basename
		b.Images.SetRow(row, s.Image)
		b.setTarget(row, s.Target)
	}
	return b, nil
}

func newBatch(n, width int) *Batch {
	return &Batch{
		Basenames: make([]string, n),
		Images:    mat.NewDense(n, width, nil),
		BBoxes:    mat.NewDense(n, 4, nil),
		Person:    make([]int, n),
		Trash:     make([]int, n),
		Disposal:  make([]int, n),
	}
}

func (b *Batch) setTarget(row int, t labels.Target) {
	b.BBoxes.SetRow(row, t.PersonBox[:])
	b.Person[row] = t.PersonClass
	b.Trash[row] = t.TrashClass
	b.Disposal[row] = t.DisposalClass
}
