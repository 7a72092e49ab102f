package models

import "errors"

// Custom errors
var (
	ErrEmptyDataset      = errors.New("dataset contains no usable rows")
	ErrTooFewRaces       = errors.New("grouped cross-validation requires at least 2 races")
	ErrDegenerateFeature = errors.New("feature has zero variance in training data")
	ErrUnknownFeature    = errors.New("feature not present in transformed matrix")
	ErrNotFitted         = errors.New("transform state has not been fitted")
	ErrDimensionMismatch = errors.New("row count does not match race grouping")
)
