package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"fruitbot/internal/gacha"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed fruits.yaml
var defaultCatalog []byte

// File is the on-disk catalog format.
type File struct {
	Rates       map[string]float64    `yaml:"rates"`
	PowerRanges map[string]PowerRange `yaml:"power_ranges"`
	Items       []FileItem            `yaml:"items"`
}

type FileItem struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Tier        string      `yaml:"tier"`
	Category    string      `yaml:"category"`
	Element     string      `yaml:"element"`
	Description string      `yaml:"description"`
	Power       *PowerRange `yaml:"power"`
}

var itemIDPattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string, log *zap.Logger) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultCatalog, log)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	return Parse(b, log)
}

// Default returns the embedded catalog.
func Default(log *zap.Logger) (*Catalog, error) {
	return Parse(defaultCatalog, log)
}

// Parse decodes and validates a catalog document.
func Parse(data []byte, log *zap.Logger) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	return Build(f, log)
}

// Build validates f and turns it into a Catalog. Every problem is reported
// in one error. Tiers without items only produce a warning.
func Build(f File, log *zap.Logger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var errs []string

	rates := gacha.DefaultTable()
	if len(f.Rates) > 0 {
		m := make(map[gacha.Tier]float64, len(f.Rates))
		for name, pct := range f.Rates {
			tier, err := gacha.ParseTier(name)
			if err != nil {
				errs = append(errs, fmt.Sprintf("rates: unknown tier %q", name))
				continue
			}
			m[tier] = pct
		}
		t, err := gacha.TableFromMap(m)
		if err != nil {
			errs = append(errs, "rates: "+err.Error())
		}
		rates = t
	}

	ranges := DefaultPowerRanges()
	for name, r := range f.PowerRanges {
		tier, err := gacha.ParseTier(name)
		if err != nil {
			errs = append(errs, fmt.Sprintf("power_ranges: unknown tier %q", name))
			continue
		}
		if msg := checkRange(r); msg != "" {
			errs = append(errs, fmt.Sprintf("power_ranges.%s: %s", name, msg))
			continue
		}
		ranges[tier] = r
	}

	if len(f.Items) == 0 {
		errs = append(errs, "items: catalog has no items")
	}
	seen := make(map[string]struct{}, len(f.Items))
	items := make([]Item, 0, len(f.Items))
	for i, fi := range f.Items {
		id := strings.TrimSpace(fi.ID)
		if !itemIDPattern.MatchString(id) {
			errs = append(errs, fmt.Sprintf("items[%d]: invalid id %q", i, fi.ID))
			continue
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, fmt.Sprintf("items[%d]: duplicate id %q", i, id))
			continue
		}
		seen[id] = struct{}{}
		tier, err := gacha.ParseTier(fi.Tier)
		if err != nil {
			errs = append(errs, fmt.Sprintf("items[%d] %s: unknown tier %q", i, id, fi.Tier))
			continue
		}
		if strings.TrimSpace(fi.Name) == "" {
			errs = append(errs, fmt.Sprintf("items[%d] %s: name is required", i, id))
			continue
		}
		if fi.Power != nil {
			if msg := checkRange(*fi.Power); msg != "" {
				errs = append(errs, fmt.Sprintf("items[%d] %s: power %s", i, id, msg))
				continue
			}
		}
		items = append(items, Item{
			ID:          id,
			Name:        strings.TrimSpace(fi.Name),
			Tier:        tier,
			Category:    fi.Category,
			Element:     fi.Element,
			Description: fi.Description,
			Power:       fi.Power,
		})
	}

	if len(errs) > 0 {
		return nil, errors.Newf("invalid catalog:\n  - %s", strings.Join(errs, "\n  - "))
	}

	c := newCatalog(rates, ranges, items, log)
	for _, tier := range c.EmptyTiers() {
		c.log.Warn("catalog tier has no items; grants will use placeholders", zap.String("tier", tier.String()))
	}
	return c, nil
}

func checkRange(r PowerRange) string {
	switch {
	case r.Min <= 0:
		return "min must be > 0"
	case r.Max < r.Min:
		return fmt.Sprintf("range is inverted (min %v > max %v)", r.Min, r.Max)
	}
	return ""
}
