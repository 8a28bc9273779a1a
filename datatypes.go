package nestedces

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ScalarLayer is a CES aggregator over a small fixed set of named inputs.
// Weights holds one share per input (callers normally make them sum to 1,
// this is not enforced) and Sigma is the elasticity of substitution.
// Sigma = 1 is the Cobb-Douglas limit: the exponent 1/(1-sigma) diverges
// and solves propagate NaN/Inf rather than failing.
type ScalarLayer struct {
	Weights []float64
	Sigma   float64
}

// VectorLayer is a CES aggregator over an arbitrary number of homogeneous
// inputs. Weights is nOutputs x nInputs; column count must match the row
// count of every price matrix passed to its solves. Sigma = 1 behaves as
// for ScalarLayer.
type VectorLayer struct {
	Weights *mat.Dense
	Sigma   float64
}

// StackedLayer evaluates a list of independent vector layers over a batch
// of markets, one layer and one matrix column per market. All layers must
// share input and output dimensions so the single output buffer can be
// sized from Layers[0].
type StackedLayer struct {
	Layers []*VectorLayer
}

// Layer is the uniform two-operation solve interface. VectorLayer and
// StackedLayer implement it directly; a ScalarLayer participates through
// Vectorize. Dispatch is static on the concrete type, there are no
// runtime mode flags.
type Layer interface {
	// SolvePrice aggregates input prices into output prices via the CES
	// price index.
	SolvePrice(pIn *mat.Dense) (*mat.Dense, error)
	// SolveRevenue distributes budget across inputs via the CES
	// cost-share formula. pOut must be the price solve of the same pIn.
	SolveRevenue(budget, pIn, pOut *mat.Dense) (*mat.Dense, error)
}

// NewScalarLayer builds a scalar CES layer over len(weights) named inputs.
func NewScalarLayer(weights []float64, sigma float64) (*ScalarLayer, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("scalar layer needs at least one weight")
	}
	w := make([]float64, len(weights))
	copy(w, weights)
	return &ScalarLayer{Weights: w, Sigma: sigma}, nil
}

// NewVectorLayer builds a vector CES layer from an nOutputs x nInputs
// weight matrix.
func NewVectorLayer(weights *mat.Dense, sigma float64) (*VectorLayer, error) {
	if weights == nil {
		return nil, fmt.Errorf("vector layer needs a weight matrix")
	}
	return &VectorLayer{Weights: weights, Sigma: sigma}, nil
}

// NewStackedLayer builds a stacked layer from one vector layer per market.
// Every layer must share the first layer's input and output dimensions;
// the batched solves size their shared output buffer from Layers[0], so a
// mismatch here would tear the buffer layout.
func NewStackedLayer(layers []*VectorLayer) (*StackedLayer, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("stacked layer needs at least one market")
	}
	if layers[0] == nil || layers[0].Weights == nil {
		return nil, fmt.Errorf("market 0: layer is nil")
	}
	nOut, nIn := layers[0].Weights.Dims()
	for i, l := range layers[1:] {
		if l == nil || l.Weights == nil {
			return nil, fmt.Errorf("market %d: layer is nil", i+1)
		}
		r, c := l.Weights.Dims()
		if r != nOut || c != nIn {
			return nil, fmt.Errorf(
				"market %d: weight matrix is %dx%d, want %dx%d to match market 0",
				i+1, r, c, nOut, nIn,
			)
		}
	}
	return &StackedLayer{Layers: layers}, nil
}

// Markets returns the number of markets in the stack.
func (s *StackedLayer) Markets() int { return len(s.Layers) }

// dims reports the shared layer dimensions, sized from the first layer.
func (s *StackedLayer) dims() (nOut, nIn int, err error) {
	if len(s.Layers) == 0 || s.Layers[0] == nil || s.Layers[0].Weights == nil {
		return 0, 0, fmt.Errorf("stacked layer has no markets")
	}
	nOut, nIn = s.Layers[0].Weights.Dims()
	return nOut, nIn, nil
}
