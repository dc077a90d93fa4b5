// Package catalog holds the read-only set of real supplier plans that every
// recommendation is reconciled against.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-wattwise/internal/domain"
	"github.com/ahrav/go-wattwise/internal/validation"
)

// Catalog is an immutable, validated plan set, safe for concurrent use.
type Catalog struct {
	plans []domain.CatalogPlan
	byID  map[string]int
}

// file is the on-disk layout: a top-level "plans" list.
type file struct {
	Plans []domain.CatalogPlan `yaml:"plans" json:"plans"`
}

// New validates plans and builds a catalog from a private copy of them.
func New(plans []domain.CatalogPlan) (*Catalog, error) {
	if err := validation.Catalog(plans); err != nil {
		return nil, err
	}

	c := &Catalog{
		plans: make([]domain.CatalogPlan, len(plans)),
		byID:  make(map[string]int, len(plans)),
	}
	for i, p := range plans {
		p.Features = append([]string(nil), p.Features...)
		c.plans[i] = p
		c.byID[p.ID] = i
	}
	return c, nil
}

// Load reads a catalog from a YAML or JSON file. JSON is chosen by a .json
// extension; anything else is parsed as YAML.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f.Plans)
}

// ParseJSON decodes a JSON catalog, either {"plans": [...]} or a bare array.
func ParseJSON(data []byte) (*Catalog, error) {
	trimmed := bytes.TrimSpace(data)
	var plans []domain.CatalogPlan
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &plans); err != nil {
			return nil, fmt.Errorf("failed to parse catalog: %w", err)
		}
		return New(plans)
	}

	var f file
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return New(f.Plans)
}

// Plans returns the plans in catalog order. Callers must not modify them.
func (c *Catalog) Plans() []domain.CatalogPlan { return c.plans }

// Lookup returns the plan with the given ID.
func (c *Catalog) Lookup(id string) (domain.CatalogPlan, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.CatalogPlan{}, false
	}
	return c.plans[i], true
}

// Len returns the number of plans.
func (c *Catalog) Len() int { return len(c.plans) }
