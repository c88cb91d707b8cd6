package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/diegoholiveira/jsonlogic/v3"
)

// Filter is a JSON Logic rule applied to each row before it is written.
type Filter struct {
	rule any
}

// LoadFilter reads a JSON Logic rule from path.
func LoadFilter(path string) (*Filter, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read filter file: %w", err)
	}
	var rule any
	if err := json.Unmarshal(payload, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse filter rule: %w", err)
	}
	return &Filter{rule: rule}, nil
}

// Keep evaluates the rule against the row's fields. The rule must produce
// a boolean.
func (f *Filter) Keep(row Row) (bool, error) {
	result, err := jsonlogic.ApplyInterface(f.rule, row.values())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter rule: %w", err)
	}
	keep, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter rule evaluated to %T, want a boolean", result)
	}
	return keep, nil
}
