package loc2d

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/loc2d/gridmap"
)

// Options configures a Localizer. Use DefaultOptions as a starting point and
// override fields as needed; the zero value is not valid.
type Options struct {
	// TranslationThreshold is the accumulated translation, in meters, below
	// which unforced updates are skipped.
	TranslationThreshold float64 `json:"translation_threshold"`
	// RotationThreshold is the accumulated rotation, in radians, below which
	// unforced updates are skipped.
	RotationThreshold float64 `json:"rotation_threshold"`
	// L2Max is the obstacle-distance truncation in meters. It bounds each
	// residual and sets the capture range of scan matching.
	L2Max float64 `json:"l2_max"`
	// Resolution is the map resolution in meters per cell.
	Resolution float64 `json:"resolution"`
	// PatchSize is the side length, in cells, of map patches allocated by
	// NewMap.
	PatchSize int `json:"patch_size"`
	// MaxIterations bounds the solver iterations per accepted scan.
	MaxIterations int `json:"max_iterations"`
	// Strategy names the optimization strategy, "gn" or "lm". Unknown names
	// fall back to "gn".
	Strategy string `json:"strategy"`
	// Cost names the robust cost, one of "unit", "cauchy", "tstudent" or
	// "tukey". Unknown names fall back to "unit".
	Cost string `json:"cost"`
	// CostParam is the robust cost's tuning parameter: the Cauchy scale in
	// meters or the t-distribution degrees of freedom. Ignored by "unit" and
	// "tukey".
	CostParam float64 `json:"cost_param"`
	// RMSEThreshold is the match error, in meters, below which a global
	// relocalization is considered resolved.
	RMSEThreshold float64 `json:"rmse_threshold"`
	// Particles is the number of candidate poses scored by a global
	// localization search.
	Particles int `json:"particles"`
	// Seed seeds the search's random sampling. Zero means seed from the
	// current time.
	Seed int64 `json:"seed"`
}

// DefaultOptions returns the stock configuration: a 5 cm grid, half-meter and
// half-radian update gating, Gauss-Newton refinement with a 15 cm Cauchy
// cost, and 3000 relocalization particles.
func DefaultOptions() Options {
	return Options{
		TranslationThreshold: 0.5,
		RotationThreshold:    0.5,
		L2Max:                1.0,
		Resolution:           0.05,
		PatchSize:            32,
		MaxIterations:        100,
		Strategy:             "gn",
		Cost:                 "cauchy",
		CostParam:            0.15,
		RMSEThreshold:        0.15,
		Particles:            3000,
	}
}

// Validate checks the options, reporting every violation rather than just the
// first.
func (o Options) Validate() error {
	var errs error
	if o.TranslationThreshold < 0 {
		errs = multierr.Append(errs, errors.New("translation_threshold must not be negative"))
	}
	if o.RotationThreshold < 0 {
		errs = multierr.Append(errs, errors.New("rotation_threshold must not be negative"))
	}
	if o.L2Max <= 0 {
		errs = multierr.Append(errs, errors.New("l2_max must be positive"))
	}
	if o.Resolution <= 0 {
		errs = multierr.Append(errs, errors.New("resolution must be positive"))
	}
	if o.PatchSize <= 0 {
		errs = multierr.Append(errs, errors.New("patch_size must be positive"))
	}
	if o.MaxIterations <= 0 {
		errs = multierr.Append(errs, errors.New("max_iterations must be positive"))
	}
	if (o.Cost == "cauchy" || o.Cost == "tstudent") && o.CostParam <= 0 {
		errs = multierr.Append(errs, errors.Errorf("cost_param must be positive for cost %q", o.Cost))
	}
	if o.RMSEThreshold <= 0 {
		errs = multierr.Append(errs, errors.New("rmse_threshold must be positive"))
	}
	if o.Particles <= 0 {
		errs = multierr.Append(errs, errors.New("particles must be positive"))
	}
	return errs
}

// NewMap returns an empty occupancy grid matching the options' resolution and
// patch size.
func (o Options) NewMap() *gridmap.OccupancyGrid {
	return gridmap.NewOccupancyGridWithPatchSize(o.Resolution, o.PatchSize)
}
