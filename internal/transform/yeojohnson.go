package transform

import "math"

// yeoJohnson applies the Yeo-Johnson power transform for a given lambda.
// The transform is monotonic for every lambda, which the simulation stage
// relies on when inverse-transforming predictions.
func yeoJohnson(x, lambda float64) float64 {
	switch {
	case x >= 0 && lambda != 0:
		return (math.Pow(x+1, lambda) - 1) / lambda
	case x >= 0:
		return math.Log1p(x)
	case lambda != 2:
		return -(math.Pow(1-x, 2-lambda) - 1) / (2 - lambda)
	default:
		return -math.Log1p(-x)
	}
}

// yeoJohnsonInverse maps a transformed value back to the original scale.
func yeoJohnsonInverse(y, lambda float64) float64 {
	switch {
	case y >= 0 && lambda != 0:
		return math.Pow(y*lambda+1, 1/lambda) - 1
	case y >= 0:
		return math.Expm1(y)
	case lambda != 2:
		return 1 - math.Pow(1-y*(2-lambda), 1/(2-lambda))
	default:
		return -math.Expm1(-y)
	}
}

// fitLambda estimates the Yeo-Johnson lambda by maximizing the profile
// log-likelihood over [-5, 5] with a golden-section search.
func fitLambda(values []float64) float64 {
	const (
		lo        = -5.0
		hi        = 5.0
		tolerance = 1e-4
	)
	invPhi := (math.Sqrt(5) - 1) / 2

	a, b := lo, hi
	c := b - invPhi*(b-a)
	d := a + invPhi*(b-a)
	fc := yjLogLikelihood(values, c)
	fd := yjLogLikelihood(values, d)

	for b-a > tolerance {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - invPhi*(b-a)
			fc = yjLogLikelihood(values, c)
		} else {
			a, c, fc = c, d, fd
			d = a + invPhi*(b-a)
			fd = yjLogLikelihood(values, d)
		}
	}
	return (a + b) / 2
}

func yjLogLikelihood(values []float64, lambda float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return math.Inf(-1)
	}

	transformed := make([]float64, len(values))
	jacobian := 0.0
	for i, x := range values {
		transformed[i] = yeoJohnson(x, lambda)
		jacobian += (lambda - 1) * sign(x) * math.Log1p(math.Abs(x))
	}

	mean := 0.0
	for _, v := range transformed {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range transformed {
		diff := v - mean
		variance += diff * diff
	}
	variance /= n
	if variance <= 0 {
		return math.Inf(-1)
	}
	return -n/2*math.Log(variance) + jacobian
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
