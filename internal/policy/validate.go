package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New()

// ValidateTable checks a candidate table for structural problems. It returns
// an *InvalidTableError on the first violation found; a table that fails
// here must never replace the active one.
func ValidateTable(table *Table) error {
	if table == nil {
		return &InvalidTableError{Reason: "nil table"}
	}

	if errStruct := structValidator.Struct(table); errStruct != nil {
		return &InvalidTableError{Reason: errStruct.Error()}
	}

	seen := make(map[string]struct{}, len(table.Rules))
	for i := range table.Rules {
		rule := &table.Rules[i]
		id := strings.TrimSpace(rule.ID)
		if id == "" {
			return &InvalidTableError{Reason: fmt.Sprintf("rule %d: missing id", i)}
		}
		if _, dup := seen[id]; dup {
			return &InvalidTableError{Reason: fmt.Sprintf("duplicate rule id %q", id)}
		}
		seen[id] = struct{}{}

		if rule.ValidFrom != nil && rule.ValidUntil != nil && rule.ValidUntil.Before(*rule.ValidFrom) {
			return &InvalidTableError{Reason: fmt.Sprintf("rule %q: validity window ends before it starts", id)}
		}
		if w := rule.Conditions.TimeWindow; w != nil {
			if errWindow := validateClock(w.Start); errWindow != nil {
				return &InvalidTableError{Reason: fmt.Sprintf("rule %q: time window start: %v", id, errWindow)}
			}
			if errWindow := validateClock(w.End); errWindow != nil {
				return &InvalidTableError{Reason: fmt.Sprintf("rule %q: time window end: %v", id, errWindow)}
			}
		}
		if min, max := rule.Conditions.MinAccuracy, rule.Conditions.MaxAccuracy; min != nil && max != nil && *max < *min {
			return &InvalidTableError{Reason: fmt.Sprintf("rule %q: accuracy bounds inverted", id)}
		}
	}
	return nil
}

func validateClock(s string) error {
	if _, errParse := time.Parse("15:04", strings.TrimSpace(s)); errParse != nil {
		return fmt.Errorf("not HH:MM: %q", s)
	}
	return nil
}
