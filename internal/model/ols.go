// Package model fits the linear speed model: ordinary least squares with
// race-grouped cross-validation and permutation-importance feature selection.
package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/DragonTsai/Horse-Racing-Probabilistic-Modelling/internal/models"
)

// OLS is an ordinary least-squares linear regressor.
type OLS struct {
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`
}

// FitOLS solves the least-squares problem via QR decomposition.
func FitOLS(x [][]float64, y []float64) (*OLS, error) {
	n := len(x)
	if n == 0 || len(y) != n {
		return nil, models.ErrEmptyDataset
	}
	p := len(x[0])
	if n < p+1 {
		return nil, fmt.Errorf("ols: %d rows cannot identify %d parameters", n, p+1)
	}

	design := mat.NewDense(n, p+1, nil)
	for i, row := range x {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}

	var qr mat.QR
	qr.Factorize(design)
	var beta mat.Dense
	if err := qr.SolveTo(&beta, false, mat.NewDense(n, 1, append([]float64(nil), y...))); err != nil {
		return nil, fmt.Errorf("ols solve: %w", err)
	}

	fitted := &OLS{Intercept: beta.At(0, 0), Weights: make([]float64, p)}
	for j := 0; j < p; j++ {
		fitted.Weights[j] = beta.At(j+1, 0)
	}
	return fitted, nil
}

// PredictRow evaluates the model on one feature row.
func (m *OLS) PredictRow(row []float64) float64 {
	pred := m.Intercept
	for j, w := range m.Weights {
		pred += w * row[j]
	}
	return pred
}

// Predict evaluates the model on a feature matrix.
func (m *OLS) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = m.PredictRow(row)
	}
	return out
}

// RMSE is the root-mean-squared error between predictions and labels.
func RMSE(predicted, actual []float64) float64 {
	if len(predicted) == 0 {
		return 0
	}
	sum := 0.0
	for i := range predicted {
		diff := predicted[i] - actual[i]
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(predicted)))
}
