// Synthetic stop layouts for runs without real station data.
// Stops cluster where a layered simplex density field is high, which gives
// town centres with sparse links between them.

package stations

import (
	"fmt"
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/mouldnet/internal/world"
)

// SyntheticConfig holds layout generation parameters.
type SyntheticConfig struct {
	Count  int   // Stops to place
	Width  int   // Grid width
	Height int   // Grid height
	Margin int   // Empty border kept around the layout
	Seed   int64 // Random seed (0 = random)
}

// Synthetic places Count distinct stops inside the grid margin. Cells are
// drawn uniformly and kept with probability density^3, so stops gather in
// the dense patches of the noise field. It returns fewer stops only when
// the attempt budget runs out.
func Synthetic(cfg SyntheticConfig) ([]world.Pos, error) {
	if cfg.Count <= 0 {
		return nil, ErrNoStations
	}
	innerW, innerH := cfg.Width-2*cfg.Margin, cfg.Height-2*cfg.Margin
	if innerW <= 0 || innerH <= 0 {
		return nil, fmt.Errorf("stations: margin %d leaves no room in %dx%d grid", cfg.Margin, cfg.Width, cfg.Height)
	}
	if cfg.Count > innerW*innerH {
		return nil, fmt.Errorf("stations: %d stops do not fit in %dx%d", cfg.Count, innerW, innerH)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rng := rand.New(rand.NewSource(seed))
	density := opensimplex.NewNormalized(seed)

	seen := make(map[world.Pos]bool, cfg.Count)
	pts := make([]world.Pos, 0, cfg.Count)
	for attempts := cfg.Count * 1000; attempts > 0 && len(pts) < cfg.Count; attempts-- {
		p := world.Pos{X: cfg.Margin + rng.Intn(innerW), Y: cfg.Margin + rng.Intn(innerH)}
		if seen[p] {
			continue
		}
		d := octaveNoise(density, float64(p.X), float64(p.Y), 3, 0.04, 0.5)
		if rng.Float64() >= math.Pow(d, 3) {
			continue
		}
		seen[p] = true
		pts = append(pts, p)
	}
	if len(pts) == 0 {
		return nil, ErrNoStations
	}
	return pts, nil
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
