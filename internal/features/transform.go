// Package features derives model-ready feature vectors from raw transactions.
// The same derivation serves request-time scoring and offline batch jobs.
package features

import (
	"fmt"
	"math"

	"github.com/opensource-finance/sentinel/internal/domain"
)

const (
	// AmountEpsilon keeps the log transform defined for zero amounts.
	AmountEpsilon = 0.001

	// NightEndHour is the last hour (inclusive) counted as night.
	NightEndHour = 6

	secondsPerHour = 3600
	hoursPerDay    = 24
)

// Hour returns floor(t/3600) mod 24 for t >= 0.
func Hour(t float64) int {
	return int(math.Mod(math.Floor(t/secondsPerHour), hoursPerDay))
}

// IsNight reports whether hour falls in the 0-6 night window.
func IsNight(hour int) bool {
	return hour <= NightEndHour
}

// AmountLog returns ln(amount + AmountEpsilon).
func AmountLog(amount float64) float64 {
	return math.Log(amount + AmountEpsilon)
}

// Validate checks that a raw transaction can be transformed.
func Validate(tx domain.Transaction) error {
	if math.IsNaN(tx.Time) || math.IsInf(tx.Time, 0) {
		return fmt.Errorf("%w: time must be finite, got %v", domain.ErrValidation, tx.Time)
	}
	if tx.Time < 0 {
		return fmt.Errorf("%w: time must be >= 0, got %v", domain.ErrValidation, tx.Time)
	}
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
		return fmt.Errorf("%w: amount must be finite, got %v", domain.ErrValidation, tx.Amount)
	}
	if tx.Amount+AmountEpsilon <= 0 {
		return fmt.Errorf("%w: amount %v makes amount_log undefined", domain.ErrValidation, tx.Amount)
	}
	for i, v := range tx.V {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", domain.ErrValidation, domain.ComponentName(i+1), v)
		}
	}
	return nil
}

// Transform derives the feature vector of a single transaction.
func Transform(tx domain.Transaction) (domain.FeatureVector, error) {
	if err := Validate(tx); err != nil {
		return domain.FeatureVector{}, err
	}
	hour := Hour(tx.Time)
	return domain.FeatureVector{
		Transaction: tx,
		Hour:        hour,
		IsNight:     IsNight(hour),
		AmountLog:   AmountLog(tx.Amount),
	}, nil
}

// TransformBatch applies Transform to every transaction.
// The first invalid record aborts the batch; its index is part of the error.
func TransformBatch(txs []domain.Transaction) ([]domain.FeatureVector, error) {
	out := make([]domain.FeatureVector, len(txs))
	for i, tx := range txs {
		fv, err := Transform(tx)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = fv
	}
	return out, nil
}
