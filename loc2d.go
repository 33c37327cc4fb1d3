// Package loc2d localizes a robot on a known 2D occupancy grid from laser
// scans and odometry. Odometry predicts pose changes between scans, and each
// accepted scan is refined by nonlinear least squares against the map's
// truncated obstacle-distance field. A global localization mode recovers from
// a lost or unknown pose by scoring random candidate poses across the map's
// free space.
package loc2d

import (
	"math"
	"math/rand"
	"time"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"

	"go.viam.com/loc2d/gridmap"
	"go.viam.com/loc2d/nlls"
	"go.viam.com/loc2d/pose"
	"go.viam.com/loc2d/scanmatch"
)

// ErrNoMap is returned by Update when no map has been installed yet.
var ErrNoMap = errors.New("no map set")

// Localizer tracks a robot pose on a fixed occupancy grid. It is not safe
// for concurrent use; callers own the synchronization.
type Localizer struct {
	opts   Options
	solver nlls.Config
	logger golog.Logger
	rng    *rand.Rand

	grid      *gridmap.OccupancyGrid
	field     *gridmap.DistanceField
	freeCells []gridmap.Cell

	pose       pose.Pose2D
	refOdom    pose.Pose2D
	state      Lifecycle
	lastUpdate time.Time
}

// New returns a localizer with no map and a zero pose, in the Bootstrapping
// state.
func New(opts Options, logger golog.Logger) (*Localizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid options")
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Localizer{
		opts: opts,
		solver: nlls.Config{
			MaxIterations: opts.MaxIterations,
			Strategy:      nlls.StrategyFromName(opts.Strategy),
			RobustCost:    nlls.RobustCostFromName(opts.Cost, opts.CostParam),
		},
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// SetMap installs the grid to localize against and rebuilds the distance
// field. The grid is retained and must not be mutated afterward. The current
// pose and lifecycle are left alone, so a map can be swapped mid-run.
func (l *Localizer) SetMap(g *gridmap.OccupancyGrid) error {
	if g == nil {
		return errors.New("nil map")
	}
	if g.Resolution() != l.opts.Resolution {
		l.logger.Warnw("map resolution differs from configured resolution",
			"map", g.Resolution(), "configured", l.opts.Resolution)
	}
	l.grid = g
	l.field = gridmap.NewDistanceField(g, l.opts.L2Max)
	l.freeCells = g.CellsWithState(gridmap.CellFree)
	l.logger.Infow("map set", "free_cells", len(l.freeCells))
	return nil
}

// SetPose installs a pose estimate, typically the known starting pose before
// the first update.
func (l *Localizer) SetPose(p pose.Pose2D) {
	l.pose = p
}

// Pose returns the current pose estimate.
func (l *Localizer) Pose() pose.Pose2D {
	return l.pose
}

// Lifecycle returns the current operating state.
func (l *Localizer) Lifecycle() Lifecycle {
	return l.state
}

// LastUpdate returns the timestamp of the last accepted update.
func (l *Localizer) LastUpdate() time.Time {
	return l.lastUpdate
}

// Map returns the installed occupancy grid, or nil before SetMap.
func (l *Localizer) Map() *gridmap.OccupancyGrid {
	return l.grid
}

// DistanceField returns the distance field built by SetMap, or nil before
// SetMap.
func (l *Localizer) DistanceField() *gridmap.DistanceField {
	return l.field
}

// TriggerGlobalLocalization discards confidence in the current estimate. The
// next accepted update runs a map-wide candidate search, and updates keep
// searching until a refined match clears the RMSE threshold.
func (l *Localizer) TriggerGlobalLocalization() {
	l.state = Relocalizing
	l.logger.Infow("global localization triggered")
}

// EnoughMotion reports whether odometry has accumulated enough translation
// or rotation since the last accepted update for a new scan to be worth
// matching. Before the first update there is no reference to measure against
// and any motion is enough.
func (l *Localizer) EnoughMotion(odom pose.Pose2D) bool {
	if l.state == Bootstrapping {
		return true
	}
	delta := pose.Difference(odom, l.refOdom)
	return delta.Translation().Norm() > l.opts.TranslationThreshold ||
		math.Abs(delta.Theta) > l.opts.RotationThreshold
}

// Update advances the estimate with one scan, given in the sensor frame, and
// the odometry reading taken with it. It reports whether the scan was
// accepted: scans are skipped while the robot has not moved enough, unless
// force is set. The very first accepted update only records the odometry
// reference frame.
func (l *Localizer) Update(scan []r2.Point, odom pose.Pose2D, timestamp time.Time, force bool) (bool, error) {
	if l.field == nil {
		return false, ErrNoMap
	}

	if l.state == Bootstrapping {
		l.refOdom = odom
		l.lastUpdate = timestamp
		l.state = Tracking
		l.logger.Debugw("recorded odometry reference", "odometry", odom.String())
		return true, nil
	}

	if !force && !l.EnoughMotion(odom) {
		return false, nil
	}

	delta := pose.Difference(odom, l.refOdom)
	predicted := pose.Compose(l.pose, delta)
	if l.state == Relocalizing && len(scan) > 0 {
		predicted = l.globalSearch(scan, predicted)
	}

	l.pose = predicted
	l.refOdom = odom
	l.lastUpdate = timestamp

	cost := scanmatch.NewCost(l.field, scan, l.pose)
	var summary nlls.Summary
	nlls.Solve(l.solver, cost, &summary)
	l.pose = cost.Pose()
	l.logger.Debugw("scan matched",
		"pose", l.pose.String(),
		"iterations", summary.Iterations,
		"initial_cost", summary.InitialCost,
		"final_cost", summary.FinalCost,
		"stop", summary.Stop.String(),
	)

	if l.state == Relocalizing && len(scan) > 0 {
		if rmse := cost.RMSE(); rmse < l.opts.RMSEThreshold {
			l.state = Tracking
			l.logger.Infow("relocalization converged", "rmse", rmse, "pose", l.pose.String())
		} else {
			l.logger.Debugw("relocalization not converged", "rmse", rmse)
		}
	}
	return true, nil
}
