package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeDiff_OnlyChangedFields(t *testing.T) {
	before := EntryFields{
		Content:        "initial",
		TherapyMethods: []string{"manual"},
		Measurements: map[string]decimal.Decimal{
			"rom_knee": decimal.NewFromInt(90),
			"pain":     decimal.NewFromInt(5),
		},
	}
	after := EntryFields{
		Content:        "initial",
		TherapyMethods: []string{"manual"},
		Measurements: map[string]decimal.Decimal{
			"rom_knee": decimal.NewFromInt(95),
			"grip":     decimal.RequireFromString("21.5"),
		},
	}

	d := ComputeDiff(before, after)

	if d.Content != nil {
		t.Errorf("content did not change, got %+v", d.Content)
	}
	if d.TherapyMethods != nil {
		t.Errorf("methods did not change, got %+v", d.TherapyMethods)
	}
	if len(d.Measurements) != 3 {
		t.Fatalf("expected 3 measurement changes, got %d", len(d.Measurements))
	}
	if ch := d.Measurements["pain"]; ch.Before == nil || ch.After != nil {
		t.Errorf("expected pain removed, got %+v", ch)
	}
	if ch := d.Measurements["grip"]; ch.Before != nil || ch.After == nil {
		t.Errorf("expected grip added, got %+v", ch)
	}
	if ch := d.Measurements["rom_knee"]; !ch.After.Equal(decimal.NewFromInt(95)) {
		t.Errorf("expected rom_knee 95, got %+v", ch)
	}
}

func TestComputeDiff_MethodOrderIgnored(t *testing.T) {
	d := ComputeDiff(
		EntryFields{Content: "a", TherapyMethods: []string{"thermal", "manual"}},
		EntryFields{Content: "a", TherapyMethods: []string{"manual", "thermal", "manual"}},
	)
	if !d.IsEmpty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_ApplyRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		before EntryFields
		after  EntryFields
	}{
		{
			name:   "from empty",
			before: EntryFields{},
			after: EntryFields{
				Content:        "初回評価",
				TherapyMethods: []string{"exercise", "manual"},
				Measurements:   map[string]decimal.Decimal{"pain": decimal.NewFromInt(6)},
			},
		},
		{
			name: "clear everything but content",
			before: EntryFields{
				Content:        "a",
				TherapyMethods: []string{"gait"},
				Measurements:   map[string]decimal.Decimal{"pain": decimal.NewFromInt(6)},
			},
			after: EntryFields{Content: "b", TherapyMethods: []string{}, Measurements: map[string]decimal.Decimal{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDiff(tt.before, tt.after).Apply(tt.before)
			if !got.Equal(tt.after) {
				t.Errorf("apply(diff) = %+v, want %+v", got, tt.after)
			}
		})
	}
}

func TestDiff_ChangedFields(t *testing.T) {
	d := ComputeDiff(EntryFields{Content: "a"}, EntryFields{Content: "b", TherapyMethods: []string{"gait"}})

	got := d.ChangedFields()
	if len(got) != 2 || got[0] != "content" || got[1] != "therapy_methods" {
		t.Errorf("unexpected changed fields: %v", got)
	}
}
