package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// RuleID identifies an exception rule.
type RuleID string

const (
	RuleNegatives     RuleID = "negatives"
	RuleDuplicates    RuleID = "duplicates"
	RuleMissingFields RuleID = "missing_fields"
	RuleOutliers      RuleID = "outliers"
	RuleInvalidDates  RuleID = "invalid_dates"
	RuleMismatch      RuleID = "mismatch_sales_qty"
)

// RuleInfo contains display information about a rule.
type RuleInfo struct {
	ID    RuleID `json:"id"`
	Label string `json:"label"` // Checkbox label: "Duplicate Rows"
	Order int    `json:"-"`     // Evaluation and export order
}

// ruleInput is what every rule evaluates against. The table is shared by all
// selected rules and must not be modified.
type ruleInput struct {
	table  *Table
	fields Fields
	now    time.Time
}

// RuleFunc evaluates a rule. A rule may produce several named results.
type RuleFunc func(in ruleInput) ([]RuleResult, []Warning)

// RuleDefinition contains everything needed to evaluate a rule.
type RuleDefinition struct {
	Info     RuleInfo
	Evaluate RuleFunc
}

var (
	rules   = make(map[RuleID]RuleDefinition)
	rulesMu sync.RWMutex
)

// RegisterRule adds a rule definition to the registry.
// Panics if a rule with the same ID is already registered.
func RegisterRule(def RuleDefinition) {
	rulesMu.Lock()
	defer rulesMu.Unlock()

	if _, exists := rules[def.Info.ID]; exists {
		panic(fmt.Sprintf("rule already registered: %s", def.Info.ID))
	}
	rules[def.Info.ID] = def
}

// GetRule returns a rule definition by ID.
// Returns false if not found.
func GetRule(id RuleID) (RuleDefinition, bool) {
	rulesMu.RLock()
	defer rulesMu.RUnlock()

	def, ok := rules[id]
	return def, ok
}

// AllRules returns all registered rules in evaluation order.
func AllRules() []RuleDefinition {
	rulesMu.RLock()
	defer rulesMu.RUnlock()

	result := make([]RuleDefinition, 0, len(rules))
	for _, def := range rules {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Order != result[j].Info.Order {
			return result[i].Info.Order < result[j].Info.Order
		}
		return result[i].Info.ID < result[j].Info.ID
	})

	return result
}

// RuleCatalog returns display information for every registered rule.
func RuleCatalog() []RuleInfo {
	defs := AllRules()
	infos := make([]RuleInfo, len(defs))
	for i, def := range defs {
		infos[i] = def.Info
	}
	return infos
}

// RuleResult is the set of rows one rule flagged.
type RuleResult struct {
	Rule  RuleID `json:"rule"`
	Name  string `json:"name"` // Report title: "Outliers in Qty"
	Table *Table `json:"table"`
}

// RuleResults holds one entry per evaluated result, in evaluation order.
// An entry with zero rows is a valid outcome and distinct from a missing entry.
type RuleResults []RuleResult

// Get returns the result table with the given name.
func (rs RuleResults) Get(name string) (*Table, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r.Table, true
		}
	}
	return nil, false
}

// Names returns result names in order.
func (rs RuleResults) Names() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}

// ByName returns the results keyed by name.
func (rs RuleResults) ByName() map[string]*Table {
	m := make(map[string]*Table, len(rs))
	for _, r := range rs {
		m[r.Name] = r.Table
	}
	return m
}

// MarshalJSON encodes an empty set as [] rather than null.
func (rs RuleResults) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]RuleResult(rs))
}
