package model

import (
	"context"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LeastSquares fits a linear model X·w ≈ y.
//
// Features are a gonum mat.Dense in its binary encoding (one row per
// sample), labels a mat.VecDense binary encoding with one entry per row.
// The returned blob is w encoded as mat.VecDense binary.
type LeastSquares struct{}

// Train implements Trainer.
func (LeastSquares) Train(ctx context.Context, features, labels io.Reader) ([]byte, error) {
	x, err := decodeMatrix(features)
	if err != nil {
		return nil, err
	}
	y, err := decodeVector(labels)
	if err != nil {
		return nil, err
	}

	rows, cols := x.Dims()
	if y.Len() != rows {
		return nil, fmt.Errorf("%w: %d feature rows, %d labels", ErrMalformedInput, rows, y.Len())
	}
	if rows < cols {
		return nil, fmt.Errorf("%w: underdetermined system (%d rows, %d columns)", ErrMalformedInput, rows, cols)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var w mat.VecDense
	if err := w.SolveVec(x, y); err != nil {
		return nil, fmt.Errorf("least squares solve: %w", err)
	}

	blob, err := w.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode weights: %w", err)
	}
	return blob, nil
}

// Predict applies a model blob produced by LeastSquares to a feature
// matrix and returns one prediction per row.
func Predict(modelBlob []byte, features io.Reader) (*mat.VecDense, error) {
	var w mat.VecDense
	if err := w.UnmarshalBinary(modelBlob); err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrMalformedInput, err)
	}
	x, err := decodeMatrix(features)
	if err != nil {
		return nil, err
	}

	rows, cols := x.Dims()
	if cols != w.Len() {
		return nil, fmt.Errorf("%w: %d feature columns, model has %d weights", ErrMalformedInput, cols, w.Len())
	}
	out := mat.NewVecDense(rows, nil)
	out.MulVec(x, &w)
	return out, nil
}

// Score applies modelBlob to features and returns the root mean squared
// error against labels.
func Score(modelBlob []byte, features, labels io.Reader) (float64, error) {
	pred, err := Predict(modelBlob, features)
	if err != nil {
		return 0, err
	}
	y, err := decodeVector(labels)
	if err != nil {
		return 0, err
	}
	if y.Len() != pred.Len() {
		return 0, fmt.Errorf("%w: %d predictions, %d labels", ErrMalformedInput, pred.Len(), y.Len())
	}
	if y.Len() == 0 {
		return 0, nil
	}

	var residual mat.VecDense
	residual.SubVec(pred, y)
	return math.Sqrt(mat.Dot(&residual, &residual) / float64(y.Len())), nil
}

// EncodeMatrix writes m in the binary encoding LeastSquares expects for
// features.
func EncodeMatrix(w io.Writer, m *mat.Dense) error {
	_, err := m.MarshalBinaryTo(w)
	return err
}

// EncodeVector writes v in the binary encoding LeastSquares expects for
// labels.
func EncodeVector(w io.Writer, v *mat.VecDense) error {
	_, err := v.MarshalBinaryTo(w)
	return err
}

func decodeMatrix(r io.Reader) (*mat.Dense, error) {
	var m mat.Dense
	if _, err := m.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("%w: features: %v", ErrMalformedInput, err)
	}
	return &m, nil
}

func decodeVector(r io.Reader) (*mat.VecDense, error) {
	var v mat.VecDense
	if _, err := v.UnmarshalBinaryFrom(r); err != nil {
		return nil, fmt.Errorf("%w: labels: %v", ErrMalformedInput, err)
	}
	return &v, nil
}

// Verify LeastSquares implements Trainer.
var _ Trainer = LeastSquares{}
