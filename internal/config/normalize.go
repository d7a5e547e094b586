package config

import (
	"fmt"
	"strconv"

	"github.com/trashdetect/perception/internal/perr"
)

// Collection kinds understood by the normalizer.
const (
	KindCOCO     = "coco"
	KindIdentity = "identity"
	KindFlat     = "flat"
)

// NormalizeConfig lists the source collections merged into one unified
// store.
type NormalizeConfig struct {
	OutputRoot   string             `json:"output_root" validate:"required"`
	TaxonomyPath *string            `json:"taxonomy_path,omitempty"`
	RunLogPath   *string            `json:"run_log_path,omitempty"`
	Collections  []CollectionConfig `json:"collections" validate:"required,min=1,dive"`
}

// CollectionConfig describes one source collection. CategoryMap keys are the
// collection's native category ids; JSON object keys are strings, so they are
// parsed by NativeCategoryMap.
type CollectionConfig struct {
	Name           string         `json:"name" validate:"required"`
	Kind           string         `json:"kind" validate:"required,oneof=coco identity flat"`
	Root           string         `json:"root" validate:"required"`
	Annotations    *string        `json:"annotations,omitempty"`
	Prefix         *string        `json:"prefix,omitempty"`
	CategoryMap    map[string]int `json:"category_map,omitempty" validate:"omitempty,dive,gte=0"`
	AllowNativeIDs *bool          `json:"allow_native_ids,omitempty"`
	Clamp          *bool          `json:"clamp,omitempty"`
	SkipExisting   *bool          `json:"skip_existing,omitempty"`
}

// LoadNormalizeConfig loads and validates a NormalizeConfig from a JSON file.
func LoadNormalizeConfig(path string) (*NormalizeConfig, error) {
	cfg := &NormalizeConfig{}
	if err := readJSONFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks required fields, kinds, unique names and category map keys.
func (c *NormalizeConfig) Validate() error {
	if err := checkStruct("normalize config", c); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Collections))
	for i := range c.Collections {
		col := &c.Collections[i]
		if seen[col.Name] {
			return perr.Configf("duplicate collection name %q", col.Name)
		}
		seen[col.Name] = true
		if _, err := col.NativeCategoryMap(); err != nil {
			return err
		}
	}
	return nil
}

// GetTaxonomyPath returns the taxonomy_path value; empty selects the built-in
// taxonomy.
func (c *NormalizeConfig) GetTaxonomyPath() string {
	if c.TaxonomyPath == nil {
		return ""
	}
	return *c.TaxonomyPath
}

// GetRunLogPath returns the run_log_path value; empty disables report
// persistence.
func (c *NormalizeConfig) GetRunLogPath() string {
	if c.RunLogPath == nil {
		return ""
	}
	return *c.RunLogPath
}

// NativeCategoryMap converts the string-keyed JSON map into native id ->
// global id. A nil map means no translation was configured.
func (c *CollectionConfig) NativeCategoryMap() (map[int]int, error) {
	if c.CategoryMap == nil {
		return nil, nil
	}
	out := make(map[int]int, len(c.CategoryMap))
	for k, v := range c.CategoryMap {
		id, err := strconv.Atoi(k)
		if err != nil || id < 0 {
			return nil, perr.Configf("collection %q: category_map key %q is not a category id", c.Name, k)
		}
		out[id] = v
	}
	return out, nil
}

// GetAnnotations returns the annotations path relative to Root, defaulting
// to annotations.json.
func (c *CollectionConfig) GetAnnotations() string {
	if c.Annotations == nil || *c.Annotations == "" {
		return "annotations.json"
	}
	return *c.Annotations
}

// GetPrefix returns the basename prefix or "".
func (c *CollectionConfig) GetPrefix() string {
	if c.Prefix == nil {
		return ""
	}
	return *c.Prefix
}

// GetAllowNativeIDs returns allow_native_ids or false.
func (c *CollectionConfig) GetAllowNativeIDs() bool {
	return c.AllowNativeIDs != nil && *c.AllowNativeIDs
}

// GetClamp returns clamp or false.
func (c *CollectionConfig) GetClamp() bool {
	return c.Clamp != nil && *c.Clamp
}

// GetSkipExisting returns skip_existing or false.
func (c *CollectionConfig) GetSkipExisting() bool {
	return c.SkipExisting != nil && *c.SkipExisting
}
