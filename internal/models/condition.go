package models

import (
	"encoding/json"
	"fmt"
)

// ConditionOp enumerates the operators of the eligibility condition language.
type ConditionOp string

const (
	OpEqual              ConditionOp = "EQUAL"
	OpNotEqual           ConditionOp = "NOT_EQUAL"
	OpGreaterThan        ConditionOp = "GREATER_THAN"
	OpGreaterThanOrEqual ConditionOp = "GREATER_THAN_OR_EQUAL"
	OpLessThan           ConditionOp = "LESS_THAN"
	OpLessThanOrEqual    ConditionOp = "LESS_THAN_OR_EQUAL"
	OpAnd                ConditionOp = "AND"
	OpOr                 ConditionOp = "OR"
)

// Condition is a recursive boolean predicate over a user attribute record.
// The Op field discriminates the variant: AND/OR nodes carry Conditions,
// every other operator is a leaf comparing the dotted-path Field against
// Value. A nil *Condition means "no condition".
type Condition struct {
	Op         ConditionOp `json:"op"`
	Field      string      `json:"field,omitempty"`
	Value      interface{} `json:"value,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// IsComposite reports whether the node is an AND/OR combinator.
func (c *Condition) IsComposite() bool {
	return c != nil && (c.Op == OpAnd || c.Op == OpOr)
}

// Scan implements sql.Scanner for JSONB condition columns. Conditions are
// only ever read here; nothing writes them back, so there is no Valuer
// counterpart.
func (c *Condition) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported condition column type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, c)
}
