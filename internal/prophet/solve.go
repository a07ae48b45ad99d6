package prophet

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// maxLeverage excludes near-interpolated rows from the leave-one-out sum;
// their e/(1-h) ratio is dominated by rounding.
const maxLeverage = 1 - 1e-6

// ridge solves min ||y - X b||^2 + sum(lambda_j * b_j^2) through the normal
// equations and returns the coefficients with the diagonal of the hat matrix
// H = X (X'X + L)^-1 X'. Cholesky first; QR-backed Solve if the system is
// not numerically positive definite.
func ridge(x *mat.Dense, y []float64, lambda []float64) ([]float64, []float64, error) {
	n, p := x.Dims()
	var xtx mat.Dense
	xtx.Mul(x.T(), x)

	trace := 0.0
	for j := 0; j < p; j++ {
		trace += xtx.At(j, j)
	}
	jitter := 1e-10 * trace / float64(p)
	for j := 0; j < p; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda[j]+jitter)
	}

	// rhs holds X'y in its first column and X' in the rest, so one solve
	// yields both the coefficients and A^-1 X'.
	rhs := mat.NewDense(p, n+1, nil)
	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(len(y), y))
	rhs.SetCol(0, xty.RawVector().Data)
	rhs.Slice(0, p, 1, n+1).(*mat.Dense).Copy(x.T())

	var sol mat.Dense
	sym := mat.NewSymDense(p, append([]float64(nil), xtx.RawMatrix().Data...))
	var chol mat.Cholesky
	solved := false
	if chol.Factorize(sym) {
		solved = chol.SolveTo(&sol, rhs) == nil
	}
	if !solved {
		if err := sol.Solve(&xtx, rhs); err != nil {
			return nil, nil, fmt.Errorf("solve normal equations: %w", err)
		}
	}

	beta := make([]float64, p)
	for j := range beta {
		beta[j] = sol.At(j, 0)
		if math.IsNaN(beta[j]) || math.IsInf(beta[j], 0) {
			return nil, nil, fmt.Errorf("non-finite coefficient at %d", j)
		}
	}
	lev := make([]float64, n)
	for i := range lev {
		h := 0.0
		for j := 0; j < p; j++ {
			h += x.At(i, j) * sol.At(j, i+1)
		}
		lev[i] = h
	}
	return beta, lev, nil
}

// noiseVariance estimates sigma^2 from the residuals of a ridge fit. It takes
// the larger of the degrees-of-freedom corrected SSE/(n - tr H) and the
// leave-one-out mean of (e_i / (1 - h_ii))^2, so a fit that interpolates a
// short history still reports its out-of-sample error.
func noiseVariance(x *mat.Dense, y, beta, lev []float64) float64 {
	var fitted mat.VecDense
	fitted.MulVec(x, mat.NewVecDense(len(beta), beta))

	n := len(y)
	sse, press, edf := 0.0, 0.0, 0.0
	kept := 0
	for i, v := range y {
		e := v - fitted.AtVec(i)
		sse += e * e
		edf += lev[i]
		if lev[i] < maxLeverage {
			loo := e / (1 - lev[i])
			press += loo * loo
			kept++
		}
	}
	v := sse / math.Max(float64(n)-edf, 1)
	if kept > 0 {
		v = math.Max(v, press/float64(kept))
	}
	return v
}
