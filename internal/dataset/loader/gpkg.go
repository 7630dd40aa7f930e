package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-geom/encoding/wkb"
	_ "modernc.org/sqlite"

	"github.com/chomoku/kyoto-hexmap/internal/dataset"
)

// LoadGeoPackage reads the first features table of a GeoPackage. Columns
// follow the table definition without the integer primary key and the
// geometry column.
func LoadGeoPackage(ctx context.Context, path string) (*dataset.Collection, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("gpkg open %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("gpkg %s: %w", path, err)
	}

	var table, geomCol string
	var srsID int
	err = db.QueryRowContext(ctx, `
		SELECT c.table_name, g.column_name, g.srs_id
		FROM gpkg_contents c
		JOIN gpkg_geometry_columns g ON g.table_name = c.table_name
		WHERE c.data_type = 'features'
		ORDER BY c.table_name
		LIMIT 1`).Scan(&table, &geomCol, &srsID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("gpkg %s: no features table", path)
	}
	if err != nil {
		return nil, fmt.Errorf("gpkg %s: read contents: %w", path, err)
	}

	code, err := srsCode(ctx, db, srsID)
	if err != nil {
		return nil, fmt.Errorf("gpkg %s: %w", path, err)
	}

	cols, err := tableColumns(ctx, db, table, geomCol)
	if err != nil {
		return nil, fmt.Errorf("gpkg %s: %w", path, err)
	}

	selectCols := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		selectCols = append(selectCols, quoteIdent(c))
	}
	selectCols = append(selectCols, quoteIdent(geomCol))
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selectCols, ", "), quoteIdent(table))

	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("gpkg %s: query %s: %w", path, table, err)
	}
	defer func() { _ = rows.Close() }()

	var recs []dataset.Record
	row := 0
	for rows.Next() {
		vals := make([]any, len(cols))
		var blob []byte
		dest := make([]any, 0, len(cols)+1)
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		dest = append(dest, &blob)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("gpkg %s: scan row %d: %w", path, row, err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}

		g, err := DecodeGeoPackageGeometry(blob)
		if err != nil {
			return nil, fmt.Errorf("gpkg %s: row %d: %w", path, row, err)
		}
		recs = append(recs, dataset.Record{Row: row, Geometry: g, Values: vals})
		row++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("gpkg %s: rows: %w", path, err)
	}

	coll := dataset.NewCollection(table, DisplayCRS, cols, recs, 0)
	return toGeographic(coll, code)
}

// srsCode resolves a GeoPackage srs_id through gpkg_spatial_ref_sys into an
// "AUTH:CODE" string. The reserved ids 0 and -1 mean undefined and yield "".
func srsCode(ctx context.Context, db *sql.DB, srsID int) (string, error) {
	if srsID <= 0 {
		return "", nil
	}
	var org string
	var id int
	err := db.QueryRowContext(ctx,
		`SELECT organization, organization_coordsys_id FROM gpkg_spatial_ref_sys WHERE srs_id = ?`,
		srsID).Scan(&org, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("srs_id %d missing from gpkg_spatial_ref_sys", srsID)
	}
	if err != nil {
		return "", fmt.Errorf("read srs_id %d: %w", srsID, err)
	}
	if strings.EqualFold(org, "NONE") || id <= 0 {
		return "", nil
	}
	return strings.ToUpper(org) + ":" + strconv.Itoa(id), nil
}

func tableColumns(ctx context.Context, db *sql.DB, table, geomCol string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notnull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("table_info %s: %w", table, err)
		}
		if name == geomCol {
			continue
		}
		if pk > 0 && strings.EqualFold(typ, "INTEGER") {
			continue
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	return cols, nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// DecodeGeoPackageGeometry strips the GeoPackage binary header and decodes
// the standard WKB that follows. A nil blob or the empty flag yields nil.
func DecodeGeoPackageGeometry(b []byte) (orb.Geometry, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, errors.New("not a GeoPackage geometry blob")
	}
	flags := b[3]
	if flags&0x20 != 0 {
		return nil, errors.New("extended GeoPackage geometries are not supported")
	}
	if flags&0x10 != 0 {
		return nil, nil
	}

	var envelope int
	switch (flags >> 1) & 0x07 {
	case 0:
		envelope = 0
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, fmt.Errorf("invalid envelope indicator in flags 0x%02x", flags)
	}
	start := 8 + envelope
	if len(b) < start {
		return nil, errors.New("truncated GeoPackage header")
	}

	g, err := wkb.Unmarshal(b[start:])
	if err != nil {
		return nil, fmt.Errorf("decode wkb: %w", err)
	}
	return toOrb(g)
}
