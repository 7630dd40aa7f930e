// Package catalog lists the datasets the service can render, the facility
// overlay and the attribution text shown with them.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chomoku/kyoto-hexmap/internal/dataset"
)

type Dataset struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
	Path  string `yaml:"path" json:"-"`
	// SkipLeadingColumns hides identifier columns (e.g. the mesh code of the
	// census tiles) from the column selector.
	SkipLeadingColumns int `yaml:"skip_leading_columns" json:"-"`
}

type Facilities struct {
	Label         string `yaml:"label" json:"label"`
	Path          string `yaml:"path" json:"-"`
	CategoryField string `yaml:"category_field" json:"category_field"`
	Separator     string `yaml:"separator" json:"separator"`
}

type Catalog struct {
	Datasets    []Dataset  `yaml:"datasets" json:"datasets"`
	Facilities  Facilities `yaml:"facilities" json:"facilities"`
	Attribution []string   `yaml:"attribution" json:"attribution"`
}

// Default is the Kyoto data layout under dataDir.
func Default(dataDir string) Catalog {
	if dataDir == "" {
		dataDir = "data"
	}
	p := func(name string) string { return filepath.Join(dataDir, name) }
	return Catalog{
		Datasets: []Dataset{
			{Key: "kokusei", Label: "国勢調査", Path: p("kyoto_kokuse_1km.gpkg"), SkipLeadingColumns: 1},
			{Key: "suikei", Label: "人口推計", Path: p("kyoto_city_1km_suikei.gpkg")},
			{Key: "chika", Label: "地価評価", Path: p("kyoto_chika_202307.gpkg")},
		},
		Facilities: Facilities{
			Label:         "医療機関データ",
			Path:          p("kyoto_iryo_kikan.gpkg"),
			CategoryField: "P04_004",
			Separator:     dataset.FullWidthSpace,
		},
		Attribution: []string{
			"人口推計、地価評価、医療機関: [国土数値情報（国交省）](https://nlftp.mlit.go.jp/)を基に[合同会社長目](https://chomoku.info)が作成",
			"国勢調査: [e-Stat](https://www.e-stat.go.jp/gis)を基に[合同会社長目](https://chomoku.info)が作成",
		},
	}
}

// Load reads a YAML catalog. Relative dataset paths resolve against the
// catalog file's directory.
func Load(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	base := filepath.Dir(path)
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	for i := range c.Datasets {
		c.Datasets[i].Path = resolve(c.Datasets[i].Path)
	}
	c.Facilities.Path = resolve(c.Facilities.Path)
	if c.Facilities.Separator == "" {
		c.Facilities.Separator = dataset.FullWidthSpace
	}

	if err := c.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func (c Catalog) Validate() error {
	if len(c.Datasets) == 0 {
		return errors.New("no datasets configured")
	}
	seen := map[string]struct{}{}
	for i, d := range c.Datasets {
		if strings.TrimSpace(d.Key) == "" {
			return fmt.Errorf("dataset %d: empty key", i)
		}
		if d.Path == "" {
			return fmt.Errorf("dataset %q: empty path", d.Key)
		}
		if d.SkipLeadingColumns < 0 {
			return fmt.Errorf("dataset %q: negative skip_leading_columns", d.Key)
		}
		if _, dup := seen[d.Key]; dup {
			return fmt.Errorf("dataset %q: duplicate key", d.Key)
		}
		seen[d.Key] = struct{}{}
	}
	if c.Facilities.Path != "" && c.Facilities.CategoryField == "" {
		return errors.New("facilities: category_field is required")
	}
	return nil
}

// Dataset finds a dataset by key or by label.
func (c Catalog) Dataset(keyOrLabel string) (Dataset, bool) {
	for _, d := range c.Datasets {
		if d.Key == keyOrLabel || d.Label == keyOrLabel {
			return d, true
		}
	}
	return Dataset{}, false
}

// Columns returns the selectable columns of a loaded collection: attribute
// columns minus the leading ones the dataset hides.
func (d Dataset) Columns(coll *dataset.Collection) []string {
	cols := coll.AttributeColumns()
	if d.SkipLeadingColumns >= len(cols) {
		return nil
	}
	return cols[d.SkipLeadingColumns:]
}

// Readiness reports the configured files that are not present on disk.
func (c Catalog) Readiness() (bool, []string) {
	var missing []string
	check := func(p string) {
		if p == "" {
			return
		}
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	for _, d := range c.Datasets {
		check(d.Path)
	}
	check(c.Facilities.Path)
	return len(missing) == 0, missing
}

// Dependents resolves a dataset key or label, or "facilities" or the
// facility label, to its file and the keys of the datasets whose renders
// read it. Facilities feed every dataset's render.
func (c Catalog) Dependents(name string) (string, []string, bool) {
	if d, ok := c.Dataset(name); ok {
		return d.Path, []string{d.Key}, true
	}
	if c.Facilities.Path == "" || (name != "facilities" && name != c.Facilities.Label) {
		return "", nil, false
	}
	keys := make([]string, len(c.Datasets))
	for i, d := range c.Datasets {
		keys[i] = d.Key
	}
	return c.Facilities.Path, keys, true
}
