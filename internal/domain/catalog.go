package domain

import (
	"fmt"
	"slices"
	"strings"
)

// TherapyMethod is one entry of the fixed therapy-method catalog.
type TherapyMethod struct {
	Code  string `koanf:"code"  json:"code"`
	Label string `koanf:"label" json:"label"`
}

// DefaultTherapyMethods is used when configuration supplies no catalog.
var DefaultTherapyMethods = []TherapyMethod{
	{Code: "manual", Label: "Manual therapy"},
	{Code: "exercise", Label: "Therapeutic exercise"},
	{Code: "electrical", Label: "Electrical stimulation"},
	{Code: "thermal", Label: "Thermotherapy"},
	{Code: "ultrasound", Label: "Ultrasound therapy"},
	{Code: "traction", Label: "Traction"},
	{Code: "massage", Label: "Massage"},
	{Code: "gait", Label: "Gait training"},
}

// TherapyCatalog is the set of valid therapy-method codes.
type TherapyCatalog struct {
	methods []TherapyMethod
	byCode  map[string]TherapyMethod
}

// NewTherapyCatalog builds a catalog. Codes must be unique and non-empty.
func NewTherapyCatalog(methods []TherapyMethod) (*TherapyCatalog, error) {
	c := &TherapyCatalog{byCode: make(map[string]TherapyMethod, len(methods))}
	for _, m := range methods {
		m.Code = strings.TrimSpace(m.Code)
		if m.Code == "" {
			return nil, fmt.Errorf("therapy catalog: empty code")
		}
		if _, dup := c.byCode[m.Code]; dup {
			return nil, fmt.Errorf("therapy catalog: duplicate code %q", m.Code)
		}
		if m.Label == "" {
			m.Label = m.Code
		}
		c.byCode[m.Code] = m
		c.methods = append(c.methods, m)
	}
	slices.SortFunc(c.methods, func(a, b TherapyMethod) int { return strings.Compare(a.Code, b.Code) })
	return c, nil
}

// CatalogFromCodes builds a catalog whose labels equal the codes.
func CatalogFromCodes(codes []string) (*TherapyCatalog, error) {
	methods := make([]TherapyMethod, 0, len(codes))
	for _, code := range codes {
		methods = append(methods, TherapyMethod{Code: code})
	}
	return NewTherapyCatalog(methods)
}

// Contains reports whether code is in the catalog.
func (c *TherapyCatalog) Contains(code string) bool {
	_, ok := c.byCode[code]
	return ok
}

// Label returns the display label of code, or the code itself.
func (c *TherapyCatalog) Label(code string) string {
	if m, ok := c.byCode[code]; ok {
		return m.Label
	}
	return code
}

// Methods returns the catalog sorted by code.
func (c *TherapyCatalog) Methods() []TherapyMethod {
	return slices.Clone(c.methods)
}

// Validate rejects codes missing from the catalog.
func (c *TherapyCatalog) Validate(codes []string) error {
	for _, code := range codes {
		if !c.Contains(code) {
			return fmt.Errorf("%w: %q", ErrUnknownTherapyMethod, code)
		}
	}
	return nil
}
