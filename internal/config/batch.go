package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/lcmerge/internal/completion"
	"github.com/banshee-data/lcmerge/internal/geometry"
	"github.com/banshee-data/lcmerge/internal/manifest"
	"github.com/banshee-data/lcmerge/internal/security"
)

const (
	// DefaultLedgerName is the ledger file created under the output base.
	DefaultLedgerName = "lcmerge.db"

	maxFileSize = 1 * 1024 * 1024 // 1MB
)

// BatchConfig describes which observations and geometries to combine and
// where inputs and outputs live. The lists are required; every scalar has a
// default available through its Get* method.
type BatchConfig struct {
	ProductsBase *string `json:"products_base,omitempty" yaml:"products_base,omitempty"`
	OutputBase   *string `json:"output_base,omitempty" yaml:"output_base,omitempty"`

	Observations []string  `json:"observations" yaml:"observations"`
	SrcRadii     []int     `json:"src_radii_arcsec" yaml:"src_radii_arcsec"`
	BkgAnnuli    [][]int   `json:"bkg_annuli_arcsec" yaml:"bkg_annuli_arcsec"` // [inner, outer] pairs
	BinSizes     []float64 `json:"bin_sizes_s" yaml:"bin_sizes_s"`

	ManifestPath *string  `json:"manifest_path,omitempty" yaml:"manifest_path,omitempty"`
	LedgerPath   *string  `json:"ledger_path,omitempty" yaml:"ledger_path,omitempty"`
	PixelScale   *float64 `json:"pixel_scale_arcsec,omitempty" yaml:"pixel_scale_arcsec,omitempty"`
	Workers      *int     `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Completion detection
	SentinelName     *string `json:"sentinel_name,omitempty" yaml:"sentinel_name,omitempty"`
	SuccessMarker    *string `json:"success_marker,omitempty" yaml:"success_marker,omitempty"`
	MaxSentinelBytes *int64  `json:"max_sentinel_bytes,omitempty" yaml:"max_sentinel_bytes,omitempty"`

	// Detector coefficients for the addition pass
	MultA *float64 `json:"mult_a,omitempty" yaml:"mult_a,omitempty"`
	MultB *float64 `json:"mult_b,omitempty" yaml:"mult_b,omitempty"`
}

// LoadBatchConfig loads a BatchConfig from a .json, .yaml or .yml file and
// validates it.
func LoadBatchConfig(path string) (*BatchConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseBatchConfig(data, ext)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ParseBatchConfig decodes data as JSON, or as YAML when ext is .yaml or
// .yml. It does not validate.
func ParseBatchConfig(data []byte, ext string) (*BatchConfig, error) {
	cfg := &BatchConfig{}
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks the lists and every set scalar, and builds every geometry
// key so that a bad radius or bin width fails before any work starts.
func (c *BatchConfig) Validate() error {
	if len(c.Observations) == 0 {
		return fmt.Errorf("observations must not be empty")
	}
	seen := make(map[string]bool, len(c.Observations))
	for _, obs := range c.Observations {
		if err := security.ValidateIdentifier(obs); err != nil {
			return fmt.Errorf("observation %q: %w", obs, err)
		}
		if seen[obs] {
			return fmt.Errorf("observation %q listed twice", obs)
		}
		seen[obs] = true
	}
	if len(c.SrcRadii) == 0 {
		return fmt.Errorf("src_radii_arcsec must not be empty")
	}
	if len(c.BkgAnnuli) == 0 {
		return fmt.Errorf("bkg_annuli_arcsec must not be empty")
	}
	if len(c.BinSizes) == 0 {
		return fmt.Errorf("bin_sizes_s must not be empty")
	}
	if _, err := c.Annuli(); err != nil {
		return err
	}
	if _, err := c.Keys(); err != nil {
		return err
	}

	if c.PixelScale != nil && !(*c.PixelScale > 0) {
		return fmt.Errorf("pixel_scale_arcsec must be positive, got %v", *c.PixelScale)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.SentinelName != nil {
		if err := security.ValidateIdentifier(*c.SentinelName); err != nil {
			return fmt.Errorf("sentinel_name: %w", err)
		}
	}
	if c.SuccessMarker != nil && strings.TrimSpace(*c.SuccessMarker) == "" {
		return fmt.Errorf("success_marker must not be blank")
	}
	if c.MaxSentinelBytes != nil && *c.MaxSentinelBytes <= 0 {
		return fmt.Errorf("max_sentinel_bytes must be positive, got %d", *c.MaxSentinelBytes)
	}
	for name, v := range map[string]*float64{"mult_a": c.MultA, "mult_b": c.MultB} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0) || *v == 0) {
			return fmt.Errorf("%s must be finite and non-zero, got %v", name, *v)
		}
	}
	return nil
}

// Annuli converts the configured [inner, outer] pairs.
func (c *BatchConfig) Annuli() ([]manifest.Annulus, error) {
	out := make([]manifest.Annulus, 0, len(c.BkgAnnuli))
	for i, pair := range c.BkgAnnuli {
		if len(pair) != 2 {
			return nil, fmt.Errorf("bkg_annuli_arcsec[%d]: want [inner, outer], got %v", i, pair)
		}
		out = append(out, manifest.Annulus{Inner: pair[0], Outer: pair[1]})
	}
	return out, nil
}

// Keys returns every source radius × annulus × bin size combination in
// configuration order.
func (c *BatchConfig) Keys() ([]geometry.Key, error) {
	annuli, err := c.Annuli()
	if err != nil {
		return nil, err
	}
	keys := make([]geometry.Key, 0, len(c.SrcRadii)*len(annuli)*len(c.BinSizes))
	for _, r := range c.SrcRadii {
		for _, a := range annuli {
			for _, bin := range c.BinSizes {
				k, err := geometry.NewKey(r, a.Inner, a.Outer, bin)
				if err != nil {
					return nil, err
				}
				keys = append(keys, k)
			}
		}
	}
	return keys, nil
}

// GetProductsBase returns products_base or "products".
func (c *BatchConfig) GetProductsBase() string {
	if c.ProductsBase == nil || *c.ProductsBase == "" {
		return "products"
	}
	return *c.ProductsBase
}

// GetOutputBase returns output_base or "combined".
func (c *BatchConfig) GetOutputBase() string {
	if c.OutputBase == nil || *c.OutputBase == "" {
		return "combined"
	}
	return *c.OutputBase
}

// GetManifestPath defaults to pixel_areas.json under the products base.
func (c *BatchConfig) GetManifestPath() string {
	if c.ManifestPath == nil || *c.ManifestPath == "" {
		return filepath.Join(c.GetProductsBase(), manifest.DefaultFileName)
	}
	return *c.ManifestPath
}

// GetLedgerPath defaults to lcmerge.db under the output base.
func (c *BatchConfig) GetLedgerPath() string {
	if c.LedgerPath == nil || *c.LedgerPath == "" {
		return filepath.Join(c.GetOutputBase(), DefaultLedgerName)
	}
	return *c.LedgerPath
}

// GetPixelScale returns pixel_scale_arcsec or the instrument default.
func (c *BatchConfig) GetPixelScale() float64 {
	if c.PixelScale == nil {
		return geometry.PixelScale
	}
	return *c.PixelScale
}

// GetWorkers returns workers, or 0 to let the orchestrator pick.
func (c *BatchConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetSentinelName returns sentinel_name or the extraction log name.
func (c *BatchConfig) GetSentinelName() string {
	if c.SentinelName == nil {
		return completion.DefaultSentinelName
	}
	return *c.SentinelName
}

// GetSuccessMarker returns success_marker or the default marker line.
func (c *BatchConfig) GetSuccessMarker() string {
	if c.SuccessMarker == nil {
		return completion.DefaultMarker
	}
	return *c.SuccessMarker
}

// GetMaxSentinelBytes returns max_sentinel_bytes or 1 MiB.
func (c *BatchConfig) GetMaxSentinelBytes() int64 {
	if c.MaxSentinelBytes == nil {
		return completion.DefaultMaxBytes
	}
	return *c.MaxSentinelBytes
}

// GetMultA returns mult_a or 1.
func (c *BatchConfig) GetMultA() float64 {
	if c.MultA == nil {
		return 1
	}
	return *c.MultA
}

// GetMultB returns mult_b or 1.
func (c *BatchConfig) GetMultB() float64 {
	if c.MultB == nil {
		return 1
	}
	return *c.MultB
}

