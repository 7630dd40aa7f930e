// Package loader reads vector datasets from disk and keeps them for the
// lifetime of the process.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/chomoku/kyoto-hexmap/internal/core/observability"
	"github.com/chomoku/kyoto-hexmap/internal/dataset"
)

var ErrUnknownFormat = errors.New("unknown dataset format")

type LoadFunc func(ctx context.Context, path string) (*dataset.Collection, error)

// Load dispatches on the file extension. Every returned collection is in
// DisplayCRS and carries the derived centroid column.
func Load(ctx context.Context, path string) (*dataset.Collection, error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	start := time.Now()

	var (
		c   *dataset.Collection
		err error
	)
	switch format {
	case "gpkg":
		c, err = LoadGeoPackage(ctx, path)
	case "shp":
		c, err = LoadShapefile(path)
	case "geojson", "json":
		c, err = LoadGeoJSON(path)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
	observability.ObserveDatasetLoad(format, err, time.Since(start).Seconds())
	return c, err
}
