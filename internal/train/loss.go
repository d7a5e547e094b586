package train

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/trashdetect/perception/internal/perr"
)

// smoothL1 returns the mean Smooth-L1 loss (beta 1) over every element and
// its gradient with respect to pred.
func smoothL1(pred, target *mat.Dense) (float64, *mat.Dense) {
	r, c := pred.Dims()
	n := float64(r * c)
	grad := mat.NewDense(r, c, nil)
	loss := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			d := pred.At(i, j) - target.At(i, j)
			if math.Abs(d) < 1 {
				loss += 0.5 * d * d
				grad.Set(i, j, d/n)
			} else {
				loss += math.Abs(d) - 0.5
				grad.Set(i, j, math.Copysign(1, d)/n)
			}
		}
	}
	return loss / n, grad
}

// crossEntropy returns the batch-mean softmax cross-entropy of logits against
// class indices and its gradient with respect to logits. A label outside
// [0, classes) is a dimension error.
func crossEntropy(head string, logits *mat.Dense, labels []int) (float64, *mat.Dense, error) {
	r, c := logits.Dims()
	grad := mat.NewDense(r, c, nil)
	loss := 0.0
	for i := 0; i < r; i++ {
		y := labels[i]
		if y < 0 || y >= c {
			return 0, nil, perr.Dimensionf("%s: target class %d outside head width %d", head, y, c)
		}
		row := logits.RawRowView(i)
		lse := floats.LogSumExp(row)
		loss += lse - row[y]
		g := grad.RawRowView(i)
		for j, v := range row {
			g[j] = math.Exp(v-lse) / float64(r)
		}
		g[y] -= 1 / float64(r)
	}
	return loss / float64(r), grad, nil
}
