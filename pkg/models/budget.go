package models

// BudgetPeriod defines the time window for a budget policy.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetPolicy caps tokens for a model per period. Model "*" applies the
// limit to each model separately; an empty model caps all models combined.
type BudgetPolicy struct {
	Model     string       `json:"model" yaml:"model"`
	MaxTokens int64        `json:"max_tokens" yaml:"max_tokens"`
	Period    BudgetPeriod `json:"period" yaml:"period"`
}

// BudgetStatus shows current usage against a policy.
type BudgetStatus struct {
	Policy    BudgetPolicy `json:"policy"`
	Model     string       `json:"model"`
	Used      int64        `json:"used"`
	Remaining int64        `json:"remaining"`
}
