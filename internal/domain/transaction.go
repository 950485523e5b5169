package domain

import "strconv"

// NumComponents is the number of anonymized components (v1..v28) on a transaction.
const NumComponents = 28

// Transaction is a raw card transaction as received from a client or read from a dataset.
type Transaction struct {
	// Time is seconds elapsed since the dataset reference epoch.
	Time float64 `json:"time"`

	// Amount is the transaction amount in the account currency.
	Amount float64 `json:"amount"`

	// V holds the anonymized components v1..v28 (V[0] is v1).
	V [NumComponents]float64 `json:"v"`

	// Class is the fraud label; only present in labeled datasets.
	Class *bool `json:"class,omitempty"`
}

// FeatureVector is a Transaction plus the derived, model-ready fields.
type FeatureVector struct {
	Transaction

	Hour      int     `json:"hour"`
	IsNight   bool    `json:"isNight"`
	AmountLog float64 `json:"amountLog"`
}

// Canonical feature names, in the order returned by FeatureVector.Values.
const (
	FeatureTime      = "time"
	FeatureAmount    = "amount"
	FeatureHour      = "hour"
	FeatureIsNight   = "is_night"
	FeatureAmountLog = "amount_log"

	// LabelColumn is the label column name in labeled datasets.
	LabelColumn = "class"
)

// FeatureNames lists every feature a FeatureVector can supply.
var FeatureNames = buildFeatureNames()

// RawFeatureNames lists the raw (non-derived) transaction columns.
var RawFeatureNames = FeatureNames[: 2+NumComponents : 2+NumComponents]

func buildFeatureNames() []string {
	names := make([]string, 0, 2+NumComponents+3)
	names = append(names, FeatureTime, FeatureAmount)
	for i := 1; i <= NumComponents; i++ {
		names = append(names, ComponentName(i))
	}
	return append(names, FeatureHour, FeatureIsNight, FeatureAmountLog)
}

// ComponentName returns the column name of the i-th anonymized component (1-based).
func ComponentName(i int) string {
	return "v" + strconv.Itoa(i)
}

// Values returns the vector's values ordered as FeatureNames.
func (f *FeatureVector) Values() []float64 {
	out := make([]float64, 0, len(FeatureNames))
	out = append(out, f.Time, f.Amount)
	out = append(out, f.V[:]...)
	isNight := 0.0
	if f.IsNight {
		isNight = 1.0
	}
	return append(out, float64(f.Hour), isNight, f.AmountLog)
}

// LabeledSet pairs feature vectors with their true labels for offline evaluation.
type LabeledSet struct {
	Vectors []FeatureVector
	Labels  []bool
}

// Len returns the number of records in the set.
func (s *LabeledSet) Len() int {
	return len(s.Vectors)
}
