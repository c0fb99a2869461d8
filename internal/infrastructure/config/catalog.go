package config

import (
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/iho/clinicalledger/internal/domain"
)

// catalogFile is the layout of THERAPY_CATALOG_FILE:
//
//	methods:
//	  - code: manual
//	    label: Manual therapy
type catalogFile struct {
	Methods []domain.TherapyMethod `koanf:"methods"`
}

// LoadTherapyCatalog builds the therapy catalog. The YAML file wins over the
// code list, and the built-in catalog is used when neither is set.
func (c *Config) LoadTherapyCatalog() (*domain.TherapyCatalog, error) {
	switch {
	case c.TherapyCatalogFile != "":
		return LoadCatalogFile(c.TherapyCatalogFile)
	case len(c.TherapyCatalog) > 0:
		return domain.CatalogFromCodes(c.TherapyCatalog)
	default:
		return domain.NewTherapyCatalog(domain.DefaultTherapyMethods)
	}
}

// LoadCatalogFile reads a therapy catalog from a YAML file.
func LoadCatalogFile(path string) (*domain.TherapyCatalog, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load therapy catalog %s: %w", path, err)
	}

	var f catalogFile
	if err := k.Unmarshal("", &f); err != nil {
		return nil, fmt.Errorf("parse therapy catalog %s: %w", path, err)
	}
	if len(f.Methods) == 0 {
		return nil, fmt.Errorf("therapy catalog %s lists no methods", path)
	}

	return domain.NewTherapyCatalog(f.Methods)
}
