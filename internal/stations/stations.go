// Package stations turns transit stop locations into food cells on the grid.
//
// Two inputs are understood: a GeoJSON FeatureCollection of Point features
// (projected by scaling lon/lat offsets) and a CSV of integer x,y cells.
package stations

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/talgya/mouldnet/internal/world"
)

// ErrNoStations is returned when an input yields no usable positions.
var ErrNoStations = errors.New("stations: no stations found")

// Options controls GeoJSON projection.
type Options struct {
	Scale   float64 // multiplier applied to degree offsets before truncation
	Padding int     // distance of the smallest coordinate from the origin
}

// DefaultOptions returns the projection the stop data was prepared with.
func DefaultOptions() Options {
	return Options{Scale: 1000, Padding: 10}
}

// Load reads stations from path, choosing the parser by file extension.
// Anything that is not .csv is treated as GeoJSON.
func Load(path string, opts Options) ([]world.Pos, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("stations: open %s: %w", path, err)
	}
	defer f.Close()

	var pts []world.Pos
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		pts, err = ReadCSV(f)
	default:
		pts, err = ReadGeoJSON(f, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	slog.Info("stations loaded", "path", path, "count", len(pts))
	return pts, nil
}

// ReadGeoJSON parses Point features and projects them onto grid cells:
// offsets from the minimum lon/lat are multiplied by Scale and truncated,
// then shifted so the smallest x and y sit at Padding. Duplicate cells keep
// their first occurrence.
func ReadGeoJSON(r io.Reader, opts Options) ([]world.Pos, error) {
	if opts.Scale <= 0 {
		return nil, fmt.Errorf("stations: scale must be positive, got %g", opts.Scale)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("stations: read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("stations: decode geojson: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("stations: expected FeatureCollection, got %q", fc.Type)
	}

	var lonlat []orb.Point
	skipped := 0
	for _, feat := range fc.Features {
		switch g := feat.Geometry.(type) {
		case orb.Point:
			lonlat = append(lonlat, g)
		default:
			skipped++
		}
	}
	if skipped > 0 {
		slog.Debug("skipped non-point features", "count", skipped)
	}
	if len(lonlat) == 0 {
		return nil, ErrNoStations
	}

	minLon, minLat := lonlat[0].Lon(), lonlat[0].Lat()
	for _, c := range lonlat[1:] {
		minLon = math.Min(minLon, c.Lon())
		minLat = math.Min(minLat, c.Lat())
	}

	pts := make([]world.Pos, len(lonlat))
	for i, c := range lonlat {
		pts[i] = world.Pos{
			X: int((c.Lon() - minLon) * opts.Scale),
			Y: int((c.Lat() - minLat) * opts.Scale),
		}
	}
	return Dedup(shift(pts, opts.Padding)), nil
}

// shift translates pts so the smallest x and y equal padding.
func shift(pts []world.Pos, padding int) []world.Pos {
	minX, minY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
	}
	out := make([]world.Pos, len(pts))
	for i, p := range pts {
		out[i] = world.Pos{X: p.X - minX + padding, Y: p.Y - minY + padding}
	}
	return out
}

// ReadCSV parses "x,y" rows of grid cells. Lines starting with '#' are
// comments; a first row that is not numeric is taken as a header.
func ReadCSV(r io.Reader) ([]world.Pos, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var pts []world.Pos
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stations: read csv: %w", err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("stations: csv row %d: want x,y, got %d fields", row+1, len(rec))
		}
		x, errX := strconv.Atoi(strings.TrimSpace(rec[0]))
		y, errY := strconv.Atoi(strings.TrimSpace(rec[1]))
		if errX != nil || errY != nil {
			if row == 0 {
				continue
			}
			return nil, fmt.Errorf("stations: csv row %d: %w", row+1, errors.Join(errX, errY))
		}
		pts = append(pts, world.Pos{X: x, Y: y})
	}
	if len(pts) == 0 {
		return nil, ErrNoStations
	}
	return Dedup(pts), nil
}

// FitToGrid linearly rescales pts so their bounding box spans a w x h grid,
// clamps to the grid and drops cells that collapse onto an earlier one.
// A degenerate axis (all points equal) maps to 0.
func FitToGrid(pts []world.Pos, w, h int) []world.Pos {
	if len(pts) == 0 {
		return nil
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX, maxX = min(minX, p.X), max(maxX, p.X)
		minY, maxY = min(minY, p.Y), max(maxY, p.Y)
	}

	fit := func(v, lo, hi, size int) int {
		if hi == lo {
			return 0
		}
		n := int(float64(v-lo) / float64(hi-lo) * float64(size-1))
		return max(0, min(size-1, n))
	}

	out := make([]world.Pos, len(pts))
	for i, p := range pts {
		out[i] = world.Pos{X: fit(p.X, minX, maxX, w), Y: fit(p.Y, minY, maxY, h)}
	}
	return Dedup(out)
}

// Dedup removes repeated positions, keeping the first occurrence.
func Dedup(pts []world.Pos) []world.Pos {
	seen := make(map[world.Pos]bool, len(pts))
	out := make([]world.Pos, 0, len(pts))
	for _, p := range pts {
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Bounds reports the smallest grid that holds every position.
func Bounds(pts []world.Pos) (w, h int) {
	for _, p := range pts {
		w = max(w, p.X+1)
		h = max(h, p.Y+1)
	}
	return w, h
}
