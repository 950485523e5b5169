package rules

import "github.com/opensource-finance/sentinel/internal/domain"

// BuiltinRules returns the explanation rules seeded into an empty rule store.
// They describe the signals the fraud models weigh most.
func BuiltinRules() []*domain.RuleConfig {
	return []*domain.RuleConfig{
		{
			ID:          "night-activity",
			TenantID:    domain.GlobalTenant,
			Name:        "Night activity",
			Description: "Transaction made between 00:00 and 06:59",
			Version:     "1.0.0",
			Expression:  "is_night",
			Reason:      "transaction made at night",
			Enabled:     true,
		},
		{
			ID:          "night-large-amount",
			TenantID:    domain.GlobalTenant,
			Name:        "Large night-time amount",
			Description: "Amount above 500 during the night window",
			Version:     "1.0.0",
			Expression:  "is_night && amount > 500.0",
			Reason:      "large amount at night",
			Enabled:     true,
		},
		{
			ID:          "v14-extreme",
			TenantID:    domain.GlobalTenant,
			Name:        "Extreme V14",
			Description: "V14 far below its typical range",
			Version:     "1.0.0",
			Expression:  "v[13] < -5.0",
			Reason:      "v14 strongly negative",
			Enabled:     true,
		},
		{
			ID:          "v17-extreme",
			TenantID:    domain.GlobalTenant,
			Name:        "Extreme V17",
			Description: "V17 far below its typical range",
			Version:     "1.0.0",
			Expression:  "v[16] < -5.0",
			Reason:      "v17 strongly negative",
			Enabled:     true,
		},
		{
			ID:          "high-probability",
			TenantID:    domain.GlobalTenant,
			Name:        "High model probability",
			Description: "Model is more than 80% confident of fraud",
			Version:     "1.0.0",
			Expression:  "probability > 0.8",
			Reason:      "model probability above 0.8",
			Enabled:     true,
		},
	}
}
