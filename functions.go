package nestedces

import (
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// These functions implement the two dual CES solves for each layer
// variant. Price solves aggregate input prices into an output price
// index; revenue solves distribute a budget back across the inputs.

// SolvePrice computes the CES price index over the layer's named inputs:
//
//	pOut[j] = (sum_i w_i * pIn[i][j]^(1-sigma))^(1/(1-sigma))
//
// pIn holds one batch slice per input; all slices must share a length and
// their count must match the weight count. The sum is a left fold over
// the weighted power terms. The result has the batch length.
func (l *ScalarLayer) SolvePrice(pIn [][]float64) ([]float64, error) {
	k := len(l.Weights)
	if k == 0 {
		return nil, fmt.Errorf("price solve: layer has no weights")
	}
	if len(pIn) != k {
		return nil, fmt.Errorf("price solve: %d input price slices, layer has %d weights", len(pIn), k)
	}
	n := len(pIn[0])
	for i, p := range pIn {
		if len(p) != n {
			return nil, fmt.Errorf("price solve: input %d has length %d, input 0 has %d", i, len(p), n)
		}
	}

	exp := 1.0 - l.Sigma
	out := make([]float64, n)
	for i, p := range pIn {
		w := l.Weights[i]
		for j, v := range p {
			out[j] += w * math.Pow(v, exp)
		}
	}
	for j := range out {
		out[j] = math.Pow(out[j], 1.0/exp)
	}
	return out, nil
}

// SolveRevenue distributes budget across the layer's inputs using the CES
// cost-minimizing demand shares:
//
//	yIn[i][j] = w_i * budget[j] * (pIn[i][j]/pOut[j])^(1-sigma)
//
// pOut must be the SolvePrice result for the same pIn; the per-input
// expenditures then sum back to budget when the weights sum to 1. Returns
// one slice per input, each shaped like budget.
func (l *ScalarLayer) SolveRevenue(budget []float64, pIn [][]float64, pOut []float64) ([][]float64, error) {
	k := len(l.Weights)
	if len(pIn) != k {
		return nil, fmt.Errorf("revenue solve: %d input price slices, layer has %d weights", len(pIn), k)
	}
	n := len(budget)
	if len(pOut) != n {
		return nil, fmt.Errorf("revenue solve: pOut has length %d, budget has %d", len(pOut), n)
	}
	for i, p := range pIn {
		if len(p) != n {
			return nil, fmt.Errorf("revenue solve: input %d has length %d, budget has %d", i, len(p), n)
		}
	}

	exp := 1.0 - l.Sigma
	out := make([][]float64, k)
	for i, p := range pIn {
		yi := make([]float64, n)
		w := l.Weights[i]
		for j, v := range p {
			yi[j] = w * budget[j] * math.Pow(v/pOut[j], exp)
		}
		out[i] = yi
	}
	return out, nil
}

// Vectorize returns the equivalent single-output vector layer, whose 1xk
// weight row reproduces this layer's solves on matrix-shaped inputs.
func (l *ScalarLayer) Vectorize() *VectorLayer {
	w := make([]float64, len(l.Weights))
	copy(w, l.Weights)
	return &VectorLayer{
		Weights: mat.NewDense(1, len(w), w),
		Sigma:   l.Sigma,
	}
}

// SolvePrice computes the CES price index for every output and batch
// column: raise pIn elementwise to 1-sigma, multiply by the weight
// matrix, then raise the product elementwise to 1/(1-sigma). pIn is
// nInputs x batch; the result is nOutputs x batch. The final power is
// applied in place on the product so only the powered input is an
// intermediate allocation.
func (l *VectorLayer) SolvePrice(pIn *mat.Dense) (*mat.Dense, error) {
	nOut, nIn := l.Weights.Dims()
	rows, batch := pIn.Dims()
	if rows != nIn {
		return nil, fmt.Errorf("price solve: price matrix has %d rows, weight matrix expects %d inputs", rows, nIn)
	}

	exp := 1.0 - l.Sigma

	var pow mat.Dense
	pow.Apply(func(_, _ int, v float64) float64 {
		return math.Pow(v, exp)
	}, pIn)

	out := mat.NewDense(nOut, batch, nil)
	out.Mul(l.Weights, &pow)
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Pow(v, 1.0/exp)
	}, out)

	return out, nil
}

// SolveRevenue computes the vectorized CES demand shares: divide budget
// elementwise by pOut^(1-sigma), transpose-multiply by the weight matrix,
// then scale elementwise by pIn^(1-sigma) in place. budget and pOut are
// nOutputs x batch, pIn is nInputs x batch; the result is nInputs x batch.
func (l *VectorLayer) SolveRevenue(budget, pIn, pOut *mat.Dense) (*mat.Dense, error) {
	nOut, nIn := l.Weights.Dims()

	bR, bC := budget.Dims()
	pR, pC := pIn.Dims()
	oR, oC := pOut.Dims()
	if bR != nOut {
		return nil, fmt.Errorf("revenue solve: budget has %d rows, layer has %d outputs", bR, nOut)
	}
	if oR != nOut {
		return nil, fmt.Errorf("revenue solve: pOut has %d rows, layer has %d outputs", oR, nOut)
	}
	if pR != nIn {
		return nil, fmt.Errorf("revenue solve: pIn has %d rows, weight matrix expects %d inputs", pR, nIn)
	}
	if pC != bC || oC != bC {
		return nil, fmt.Errorf("revenue solve: batch widths differ: budget %d, pIn %d, pOut %d", bC, pC, oC)
	}

	exp := 1.0 - l.Sigma

	var yDiv mat.Dense
	yDiv.Apply(func(i, j int, v float64) float64 {
		return v / math.Pow(pOut.At(i, j), exp)
	}, budget)

	out := mat.NewDense(nIn, bC, nil)
	out.Mul(l.Weights.T(), &yDiv)
	out.Apply(func(i, j int, v float64) float64 {
		return v * math.Pow(pIn.At(i, j), exp)
	}, out)

	return out, nil
}

// SolvePrice runs the vector price solve for each market on its own
// column of pIn, in parallel. pIn is nInputs x nMarkets with exactly one
// column per layer in the stack. The nOutputs x nMarkets output buffer is
// allocated once before any task starts; each market writes only its own
// column, so the tasks need no locking and the buffer is never resized
// while they run.
func (s *StackedLayer) SolvePrice(pIn *mat.Dense) (*mat.Dense, error) {
	nOut, nIn, err := s.dims()
	if err != nil {
		return nil, err
	}
	rows, nMarkets := pIn.Dims()
	if nMarkets != len(s.Layers) {
		return nil, fmt.Errorf("price solve: %d market columns, stack has %d layers", nMarkets, len(s.Layers))
	}
	if rows != nIn {
		return nil, fmt.Errorf("price solve: price matrix has %d rows, layers expect %d inputs", rows, nIn)
	}

	out := mat.NewDense(nOut, nMarkets, nil)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range s.Layers {
		g.Go(func() error {
			col := mat.NewDense(nIn, 1, mat.Col(nil, i, pIn))
			res, err := s.Layers[i].SolvePrice(col)
			if err != nil {
				return fmt.Errorf("market %d: %w", i, err)
			}
			if r, _ := res.Dims(); r != nOut {
				return fmt.Errorf("market %d: solved %d outputs, stack expects %d", i, r, nOut)
			}
			out.SetCol(i, mat.Col(nil, 0, res))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SolveRevenue runs the vector revenue solve for each market on its own
// columns of budget, pIn and pOut, in parallel, with the same disjoint
// column-write scheme as the price solve. budget and pOut are
// nOutputs x nMarkets, pIn is nInputs x nMarkets; the result is
// nInputs x nMarkets.
func (s *StackedLayer) SolveRevenue(budget, pIn, pOut *mat.Dense) (*mat.Dense, error) {
	nOut, nIn, err := s.dims()
	if err != nil {
		return nil, err
	}
	nMarkets := len(s.Layers)

	bR, bC := budget.Dims()
	pR, pC := pIn.Dims()
	oR, oC := pOut.Dims()
	if bC != nMarkets || pC != nMarkets || oC != nMarkets {
		return nil, fmt.Errorf("revenue solve: market columns differ: budget %d, pIn %d, pOut %d, stack has %d layers",
			bC, pC, oC, nMarkets)
	}
	if bR != nOut || oR != nOut {
		return nil, fmt.Errorf("revenue solve: budget has %d rows and pOut %d, layers have %d outputs", bR, oR, nOut)
	}
	if pR != nIn {
		return nil, fmt.Errorf("revenue solve: pIn has %d rows, layers expect %d inputs", pR, nIn)
	}

	out := mat.NewDense(nIn, nMarkets, nil)

	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i := range s.Layers {
		g.Go(func() error {
			bCol := mat.NewDense(nOut, 1, mat.Col(nil, i, budget))
			pCol := mat.NewDense(nIn, 1, mat.Col(nil, i, pIn))
			oCol := mat.NewDense(nOut, 1, mat.Col(nil, i, pOut))
			res, err := s.Layers[i].SolveRevenue(bCol, pCol, oCol)
			if err != nil {
				return fmt.Errorf("market %d: %w", i, err)
			}
			if r, _ := res.Dims(); r != nIn {
				return fmt.Errorf("market %d: solved %d inputs, stack expects %d", i, r, nIn)
			}
			out.SetCol(i, mat.Col(nil, 0, res))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
