// Package classify assigns budget types to transactions through an ordered
// override chain: transaction-level override, then category-level override,
// then the built-in defaults. The first rule that answers wins.
package classify

import (
	"strings"

	"github.com/dvloznov/ledger-engine/internal/domain"
)

// BudgetType is the budgeting bucket a transaction counts against.
type BudgetType string

const (
	// Essential covers fixed living costs such as rent, utilities and insurance.
	Essential BudgetType = "essential"
	// Discretionary covers variable lifestyle spending.
	Discretionary BudgetType = "discretionary"
	// Savings covers money set aside rather than spent.
	Savings BudgetType = "savings"
	// Income covers salary and other inbound money.
	Income BudgetType = "income"
	// Excluded keeps a transaction out of budget math entirely.
	// Transfers between own accounts classify here.
	Excluded BudgetType = "excluded"
)

// Rule answers a classification for a transaction, or reports that it has no
// opinion and the next rule in the chain should be consulted.
type Rule interface {
	Classify(t *domain.Transaction) (BudgetType, bool)
}

// Chain evaluates rules in order and returns the first answer. It always
// answers: the final rule is expected to be a catch-all default.
type Chain struct {
	rules    []Rule
	fallback BudgetType
}

// NewChain builds a chain over the given rules. Fallback applies when no
// rule answers.
func NewChain(fallback BudgetType, rules ...Rule) *Chain {
	return &Chain{rules: rules, fallback: fallback}
}

// NewDefaultChain wires the standard precedence order.
func NewDefaultChain(txOverrides TransactionOverrides, catOverrides CategoryOverrides) *Chain {
	return NewChain(Discretionary, txOverrides, catOverrides, builtinDefaults{})
}

// Classify runs the chain for one transaction.
func (c *Chain) Classify(t *domain.Transaction) BudgetType {
	for _, r := range c.rules {
		if bt, ok := r.Classify(t); ok {
			return bt
		}
	}
	return c.fallback
}

// TransactionOverrides maps transaction ids to a pinned budget type. This is
// the strongest rule in the chain.
type TransactionOverrides map[string]BudgetType

func (o TransactionOverrides) Classify(t *domain.Transaction) (BudgetType, bool) {
	bt, ok := o[t.ID]
	return bt, ok
}

// CategoryOverrides maps category names (case-insensitive) to a budget type.
type CategoryOverrides map[string]BudgetType

func (o CategoryOverrides) Classify(t *domain.Transaction) (BudgetType, bool) {
	bt, ok := o[strings.ToLower(t.Category)]
	return bt, ok
}

// builtinDefaults is the terminal rule: linked transfers are excluded, credits
// count as income, and a small set of well-known categories map to their
// natural bucket.
type builtinDefaults struct{}

var defaultByCategory = map[string]BudgetType{
	"transfer":  Excluded,
	"income":    Income,
	"savings":   Savings,
	"rent":      Essential,
	"utilities": Essential,
	"insurance": Essential,
	"groceries": Essential,
	"health":    Essential,
}

func (builtinDefaults) Classify(t *domain.Transaction) (BudgetType, bool) {
	if t.IsLinked() {
		return Excluded, true
	}
	if bt, ok := defaultByCategory[strings.ToLower(t.Category)]; ok {
		return bt, true
	}
	if t.Direction == domain.Credit {
		return Income, true
	}
	return Discretionary, true
}

var (
	_ Rule = TransactionOverrides(nil)
	_ Rule = CategoryOverrides(nil)
	_ Rule = builtinDefaults{}
)
