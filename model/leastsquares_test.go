package model

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func encodeProblem(t *testing.T, x *mat.Dense, y *mat.VecDense) (features, labels *bytes.Buffer) {
	t.Helper()
	features, labels = &bytes.Buffer{}, &bytes.Buffer{}
	if err := EncodeMatrix(features, x); err != nil {
		t.Fatalf("EncodeMatrix failed: %v", err)
	}
	if err := EncodeVector(labels, y); err != nil {
		t.Fatalf("EncodeVector failed: %v", err)
	}
	return features, labels
}

// linearProblem returns a well-conditioned X and y = X·w exactly.
func linearProblem(rows int, w []float64) (*mat.Dense, *mat.VecDense) {
	cols := len(w)
	x := mat.NewDense(rows, cols, nil)
	for i := range rows {
		for j := range cols {
			x.Set(i, j, math.Sin(float64(i*cols+j+1)))
		}
	}
	y := mat.NewVecDense(rows, nil)
	y.MulVec(x, mat.NewVecDense(cols, w))
	return x, y
}

func TestLeastSquares_RecoversWeights(t *testing.T) {
	want := []float64{2.5, -1, 0.25}
	x, y := linearProblem(50, want)
	features, labels := encodeProblem(t, x, y)

	blob, err := LeastSquares{}.Train(t.Context(), features, labels)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	var w mat.VecDense
	if err := w.UnmarshalBinary(blob); err != nil {
		t.Fatalf("decode weights: %v", err)
	}
	if w.Len() != len(want) {
		t.Fatalf("weights len = %d, want %d", w.Len(), len(want))
	}
	for i, v := range want {
		if math.Abs(w.AtVec(i)-v) > 1e-9 {
			t.Errorf("w[%d] = %v, want %v", i, w.AtVec(i), v)
		}
	}
}

func TestPredict(t *testing.T) {
	weights := []float64{1, 2}
	x, y := linearProblem(10, weights)
	features, labels := encodeProblem(t, x, y)

	blob, err := LeastSquares{}.Train(t.Context(), features, labels)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	var again bytes.Buffer
	if err := EncodeMatrix(&again, x); err != nil {
		t.Fatalf("EncodeMatrix failed: %v", err)
	}
	pred, err := Predict(blob, &again)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	for i := range y.Len() {
		if math.Abs(pred.AtVec(i)-y.AtVec(i)) > 1e-9 {
			t.Errorf("pred[%d] = %v, want %v", i, pred.AtVec(i), y.AtVec(i))
		}
	}

	if _, err := Predict([]byte("junk"), &bytes.Buffer{}); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("junk model: err = %v, want ErrMalformedInput", err)
	}
}

func TestLeastSquares_MalformedInput(t *testing.T) {
	x, y := linearProblem(5, []float64{1, 1})
	_, short := linearProblem(4, []float64{1, 1})
	wide, _ := linearProblem(2, []float64{1, 1, 1})
	_, wideLabels := linearProblem(2, []float64{1, 1, 1})

	tests := []struct {
		name     string
		features func(t *testing.T) io.Reader
		labels   func(t *testing.T) io.Reader
	}{
		{
			name:     "garbage features",
			features: func(*testing.T) io.Reader { return strings.NewReader("not a matrix") },
			labels:   func(t *testing.T) io.Reader { _, l := encodeProblem(t, x, y); return l },
		},
		{
			name:     "garbage labels",
			features: func(t *testing.T) io.Reader { f, _ := encodeProblem(t, x, y); return f },
			labels:   func(*testing.T) io.Reader { return strings.NewReader("") },
		},
		{
			name:     "row count mismatch",
			features: func(t *testing.T) io.Reader { f, _ := encodeProblem(t, x, y); return f },
			labels:   func(t *testing.T) io.Reader { _, l := encodeProblem(t, x, short); return l },
		},
		{
			name:     "underdetermined",
			features: func(t *testing.T) io.Reader { f, _ := encodeProblem(t, wide, wideLabels); return f },
			labels:   func(t *testing.T) io.Reader { _, l := encodeProblem(t, wide, wideLabels); return l },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LeastSquares{}.Train(t.Context(), tt.features(t), tt.labels(t))
			if !errors.Is(err, ErrMalformedInput) {
				t.Errorf("err = %v, want ErrMalformedInput", err)
			}
		})
	}
}

func TestLeastSquares_Canceled(t *testing.T) {
	x, y := linearProblem(5, []float64{1, 1})
	features, labels := encodeProblem(t, x, y)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := (LeastSquares{}).Train(ctx, features, labels); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestTrainerFunc(t *testing.T) {
	var called bool
	tr := TrainerFunc(func(_ context.Context, f, l io.Reader) ([]byte, error) {
		called = true
		return []byte("ok"), nil
	})
	blob, err := tr.Train(t.Context(), nil, nil)
	if err != nil || string(blob) != "ok" || !called {
		t.Errorf("Train = %q, %v (called=%v)", blob, err, called)
	}
}

func TestScore(t *testing.T) {
	x, y := linearProblem(20, []float64{0.5, 3})

	exact := mat.NewVecDense(2, []float64{0.5, 3})
	exactBlob, err := exact.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	features, labels := encodeProblem(t, x, y)
	rmse, err := Score(exactBlob, features, labels)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if rmse > 1e-12 {
		t.Errorf("rmse = %v, want 0", rmse)
	}

	// Every prediction off by exactly one.
	shifted := mat.NewVecDense(y.Len(), nil)
	for i := range y.Len() {
		shifted.SetVec(i, y.AtVec(i)+1)
	}
	features, labels = encodeProblem(t, x, shifted)
	rmse, err = Score(exactBlob, features, labels)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(rmse-1) > 1e-9 {
		t.Errorf("rmse = %v, want 1", rmse)
	}

	features, _ = encodeProblem(t, x, y)
	_, short := encodeProblem(t, x, mat.NewVecDense(3, nil))
	if _, err := Score(exactBlob, features, short); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("label mismatch: err = %v, want ErrMalformedInput", err)
	}
}
