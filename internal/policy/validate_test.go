package policy

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTableRejections(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(-time.Hour)

	cases := []struct {
		name  string
		table *Table
	}{
		{"nil table", nil},
		{"missing rule id", &Table{Rules: []Rule{{}}}},
		{"duplicate ids", &Table{Rules: []Rule{{ID: "dup"}, {ID: "dup"}}}},
		{"inverted validity", &Table{Rules: []Rule{{ID: "r", ValidFrom: &from, ValidUntil: &until}}}},
		{"bad clock", &Table{Rules: []Rule{{ID: "r", Conditions: Conditions{TimeWindow: &TimeWindow{Start: "25:99", End: "06:00"}}}}}},
		{"inverted accuracy", &Table{Rules: []Rule{{ID: "r", Conditions: Conditions{MinAccuracy: floatPtr(90), MaxAccuracy: floatPtr(80)}}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errValidate := ValidateTable(tc.table)
			if errValidate == nil {
				t.Fatalf("expected rejection")
			}
			if !errors.Is(errValidate, ErrInvalidTable) {
				t.Fatalf("expected ErrInvalidTable, got %v", errValidate)
			}
		})
	}
}

func TestValidateTableAcceptsWellFormed(t *testing.T) {
	table := &Table{
		Rules: []Rule{
			{
				ID:      "night",
				Enabled: true,
				Conditions: Conditions{
					TimeWindow:  &TimeWindow{Start: "22:00", End: "06:00"},
					MinAccuracy: floatPtr(80),
					MaxAccuracy: floatPtr(100),
				},
			},
		},
	}
	if errValidate := ValidateTable(table); errValidate != nil {
		t.Fatalf("expected valid table, got %v", errValidate)
	}
}
