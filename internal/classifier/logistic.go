package classifier

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"dedupe/internal/domain"
)

// DefaultL2 is the ridge penalty applied to the feature weights.
const DefaultL2 = 0.1

// Example is one training row: a feature vector and whether it is a match.
type Example struct {
	Features []float64
	Match    bool
}

// Featurizer is the part of a comparator the classifier needs.
type Featurizer interface {
	Dimension() int
	Features(a, b domain.Record) []float64
}

// Logistic is a fitted logistic-regression pair classifier.
type Logistic struct {
	Weights    []float64
	Bias       float64
	featurizer Featurizer
}

// Score returns the match probability of the pair.
func (l *Logistic) Score(a, b domain.Record) float64 {
	return l.Predict(l.featurizer.Features(a, b))
}

// Predict returns the match probability of a feature vector.
func (l *Logistic) Predict(x []float64) float64 {
	return sigmoid(floats.Dot(l.Weights, x) + l.Bias)
}

// Fit trains on the examples. The optimisation starts from zero, so identical
// inputs give identical weights.
func Fit(featurizer Featurizer, examples []Example, l2 float64) (*Logistic, error) {
	if featurizer == nil {
		return nil, errors.New("classifier: nil featurizer")
	}
	matches, distincts := 0, 0
	dim := featurizer.Dimension()
	for i, ex := range examples {
		if len(ex.Features) != dim {
			return nil, fmt.Errorf("classifier: example %d has %d features, want %d", i, len(ex.Features), dim)
		}
		if ex.Match {
			matches++
		} else {
			distincts++
		}
	}
	if matches == 0 || distincts == 0 {
		return nil, &domain.InsufficientTrainingDataError{Matches: matches, Distincts: distincts}
	}
	if l2 < 0 {
		l2 = DefaultL2
	}

	// parameters are the weights followed by the bias; the bias is not penalised
	n := float64(len(examples))
	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			w, b := params[:dim], params[dim]
			loss := 0.0
			for _, ex := range examples {
				z := floats.Dot(w, ex.Features) + b
				if ex.Match {
					loss += softplus(-z)
				} else {
					loss += softplus(z)
				}
			}
			return loss/n + 0.5*l2*floats.Dot(w, w)
		},
		Grad: func(grad, params []float64) {
			w, b := params[:dim], params[dim]
			for i := range grad {
				grad[i] = 0
			}
			for _, ex := range examples {
				y := 0.0
				if ex.Match {
					y = 1
				}
				residual := (sigmoid(floats.Dot(w, ex.Features)+b) - y) / n
				floats.AddScaled(grad[:dim], residual, ex.Features)
				grad[dim] += residual
			}
			floats.AddScaled(grad[:dim], l2, w)
		},
	}
	result, err := optimize.Minimize(problem, make([]float64, dim+1), nil, &optimize.LBFGS{})
	if result == nil {
		return nil, fmt.Errorf("classifier: fit: %w", err)
	}
	// line search stalls near the optimum are reported as errors; the location is still usable
	for _, v := range result.X {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("classifier: fit diverged: %v", err)
		}
	}
	weights := make([]float64, dim)
	copy(weights, result.X[:dim])
	return &Logistic{Weights: weights, Bias: result.X[dim], featurizer: featurizer}, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus is log(1+e^z) without overflow.
func softplus(z float64) float64 {
	if z > 30 {
		return z
	}
	return math.Log1p(math.Exp(z))
}
