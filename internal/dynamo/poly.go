package dynamo

// MaxPolyDegree bounds dependency polynomials (five coefficients).
const MaxPolyDegree = 4

// Polynomial holds coefficients c0..c4 of c0 + c1*x + ... + c4*x^4.
type Polynomial []float64

// NewPolynomial keeps at most MaxPolyDegree+1 coefficients.
func NewPolynomial(coef ...float64) Polynomial {
	if len(coef) > MaxPolyDegree+1 {
		coef = coef[:MaxPolyDegree+1]
	}
	p := make(Polynomial, len(coef))
	copy(p, coef)
	return p
}

// Eval uses Horner's rule.
func (p Polynomial) Eval(x float64) float64 {
	r := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		r = r*x + p[i]
	}
	return r
}

// Derivative evaluates dp/dx at x.
func (p Polynomial) Derivative(x float64) float64 {
	r := 0.0
	for i := len(p) - 1; i >= 1; i-- {
		r = r*x + float64(i)*p[i]
	}
	return r
}
