package domain

import (
	"maps"
	"slices"

	"github.com/shopspring/decimal"
)

// ContentChange records a content edit.
type ContentChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// TherapyMethodsChange records a change of the therapy method set.
type TherapyMethodsChange struct {
	Before []string `json:"before"`
	After  []string `json:"after"`
}

// MeasurementChange records one metric. A nil side means the metric was
// absent on that side.
type MeasurementChange struct {
	Before *decimal.Decimal `json:"before,omitempty"`
	After  *decimal.Decimal `json:"after,omitempty"`
}

// Diff is the before/after of the fields an audit event touched.
type Diff struct {
	Content        *ContentChange               `json:"content,omitempty"`
	TherapyMethods *TherapyMethodsChange        `json:"therapy_methods,omitempty"`
	Measurements   map[string]MeasurementChange `json:"measurements,omitempty"`
}

// IsEmpty reports whether the diff changes nothing.
func (d Diff) IsEmpty() bool {
	return d.Content == nil && d.TherapyMethods == nil && len(d.Measurements) == 0
}

// ChangedFields lists the names of the touched fields.
func (d Diff) ChangedFields() []string {
	var fields []string
	if d.Content != nil {
		fields = append(fields, "content")
	}
	if d.TherapyMethods != nil {
		fields = append(fields, "therapy_methods")
	}
	if len(d.Measurements) > 0 {
		fields = append(fields, "measurements")
	}
	return fields
}

// ComputeDiff returns the changes needed to turn before into after.
func ComputeDiff(before, after EntryFields) Diff {
	var d Diff

	if before.Content != after.Content {
		d.Content = &ContentChange{Before: before.Content, After: after.Content}
	}

	bm, am := NormalizeMethods(before.TherapyMethods), NormalizeMethods(after.TherapyMethods)
	if !slices.Equal(bm, am) {
		d.TherapyMethods = &TherapyMethodsChange{Before: bm, After: am}
	}

	for name, old := range before.Measurements {
		nv, ok := after.Measurements[name]
		switch {
		case !ok:
			d.addMeasurement(name, MeasurementChange{Before: decimalPtr(old)})
		case !nv.Equal(old):
			d.addMeasurement(name, MeasurementChange{Before: decimalPtr(old), After: decimalPtr(nv)})
		}
	}
	for name, nv := range after.Measurements {
		if _, ok := before.Measurements[name]; !ok {
			d.addMeasurement(name, MeasurementChange{After: decimalPtr(nv)})
		}
	}

	return d
}

// Apply replays the diff on top of f.
func (d Diff) Apply(f EntryFields) EntryFields {
	out := EntryFields{
		Content:        f.Content,
		TherapyMethods: slices.Clone(f.TherapyMethods),
		Measurements:   maps.Clone(f.Measurements),
	}
	if d.Content != nil {
		out.Content = d.Content.After
	}
	if d.TherapyMethods != nil {
		out.TherapyMethods = NormalizeMethods(d.TherapyMethods.After)
	}
	if len(d.Measurements) > 0 && out.Measurements == nil {
		out.Measurements = make(map[string]decimal.Decimal, len(d.Measurements))
	}
	for name, ch := range d.Measurements {
		if ch.After == nil {
			delete(out.Measurements, name)
			continue
		}
		out.Measurements[name] = *ch.After
	}
	return out
}

// Clone returns a deep copy of the diff.
func (d Diff) Clone() Diff {
	var c Diff
	if d.Content != nil {
		content := *d.Content
		c.Content = &content
	}
	if d.TherapyMethods != nil {
		c.TherapyMethods = &TherapyMethodsChange{
			Before: slices.Clone(d.TherapyMethods.Before),
			After:  slices.Clone(d.TherapyMethods.After),
		}
	}
	if d.Measurements != nil {
		c.Measurements = make(map[string]MeasurementChange, len(d.Measurements))
		for name, ch := range d.Measurements {
			var cc MeasurementChange
			if ch.Before != nil {
				cc.Before = decimalPtr(*ch.Before)
			}
			if ch.After != nil {
				cc.After = decimalPtr(*ch.After)
			}
			c.Measurements[name] = cc
		}
	}
	return c
}

func (d *Diff) addMeasurement(name string, ch MeasurementChange) {
	if d.Measurements == nil {
		d.Measurements = make(map[string]MeasurementChange)
	}
	d.Measurements[name] = ch
}

func decimalPtr(v decimal.Decimal) *decimal.Decimal {
	return &v
}
