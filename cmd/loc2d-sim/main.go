// Package main contains a command to run the localizer against a simulated
// lidar robot and report how well it tracks.
package main

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/image/draw"

	"go.viam.com/loc2d"
	"go.viam.com/loc2d/gridmap"
	"go.viam.com/loc2d/pose"
	"go.viam.com/loc2d/testutils"
)

var (
	logger               = golog.NewDevelopmentLogger("loc2d_sim")
	simClock clock.Clock = clock.New()
)

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Steps      int    `flag:"steps,default=60,usage=simulation steps to run"`
	Beams      int    `flag:"beams,default=240,usage=lidar beams per scan"`
	IntervalMS int    `flag:"interval-ms,default=20,usage=milliseconds between steps"`
	Particles  int    `flag:"particles,default=6000,usage=candidate poses per relocalization search"`
	Seed       int    `flag:"seed,default=1,usage=seed for the relocalization search"`
	Kidnap     bool   `flag:"kidnap,usage=teleport the robot mid-run and trigger relocalization"`
	MapOut     string `flag:"map-out,usage=write the world grid to this file"`
	RenderOut  string `flag:"render-out,usage=write a PNG of the run to this file"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	if argsParsed.Steps <= 0 {
		return errors.New("steps must be positive")
	}
	if argsParsed.Beams <= 0 {
		return errors.New("beams must be positive")
	}
	if argsParsed.IntervalMS <= 0 {
		return errors.New("interval-ms must be positive")
	}
	return runSim(ctx, argsParsed)
}

const (
	simResolution = 0.05
	simMaxRange   = 10.0
	simStepLen    = 0.15

	// trackFailLimit is the final position error beyond which the run exits
	// non-zero.
	trackFailLimit = 0.25
)

// odomSlip is the per-step odometry error, so the localizer always has
// something to correct.
var odomSlip = pose.Pose2D{X: 0.004, Y: -0.002, Theta: 0.002}

// kidnapPose is where the robot reappears when run with -kidnap.
var kidnapPose = pose.Pose2D{X: 3.6, Y: 1.5, Theta: -2.0}

var waypoints = []r2.Point{
	{X: 1.8, Y: 2.4},
	{X: 2.4, Y: 1.3},
	{X: 1.9, Y: 0.35},
	{X: 0.4, Y: 0.4},
	{X: 0.5, Y: 2.2},
}

// simWorld is a room with boxes placed so that no two vantage points look
// alike, which keeps relocalization unambiguous.
func simWorld() *gridmap.OccupancyGrid {
	g := testutils.RectangleRoom(simResolution, 4, 3)
	testutils.AddBox(g, r2.Point{X: 0.8, Y: 0.7}, r2.Point{X: 1.2, Y: 1.5})
	testutils.AddBox(g, r2.Point{X: 2.6, Y: 0.4}, r2.Point{X: 3.4, Y: 0.8})
	testutils.AddBox(g, r2.Point{X: 2.9, Y: 2.0}, r2.Point{X: 3.2, Y: 2.6})
	return g
}

type simRobot struct {
	truth pose.Pose2D
	wp    int
}

// advance drives the robot one step toward its current waypoint, turning to
// face it directly.
func (s *simRobot) advance(stepLen float64) {
	target := waypoints[s.wp].Sub(s.truth.Translation())
	if target.Norm() < stepLen {
		s.wp = (s.wp + 1) % len(waypoints)
		target = waypoints[s.wp].Sub(s.truth.Translation())
	}
	heading := math.Atan2(target.Y, target.X)
	s.truth = pose.Pose2D{
		X:     s.truth.X + stepLen*math.Cos(heading),
		Y:     s.truth.Y + stepLen*math.Sin(heading),
		Theta: heading,
	}
}

func runSim(ctx context.Context, args Arguments) error {
	world := simWorld()
	opts := loc2d.DefaultOptions()
	opts.Seed = int64(args.Seed)
	opts.Particles = args.Particles
	// Match on nearly every step so the report reflects continuous tracking.
	opts.TranslationThreshold = 0.1
	opts.RotationThreshold = 0.1
	l, err := loc2d.New(opts, logger)
	if err != nil {
		return err
	}
	if err := l.SetMap(world); err != nil {
		return err
	}

	robot := &simRobot{truth: pose.Pose2D{X: 0.5, Y: 2.2}}
	l.SetPose(robot.truth)
	odom := robot.truth

	kidnapAt := -1
	if args.Kidnap {
		kidnapAt = args.Steps / 2
	}

	var posErrs, headingErrs []float64
	truthPath := []pose.Pose2D{robot.truth}
	estPath := []pose.Pose2D{robot.truth}

	ticker := simClock.Ticker(time.Duration(args.IntervalMS) * time.Millisecond)
	defer ticker.Stop()
	var once bool
	for step := 0; step < args.Steps; step++ {
		err := func() error {
			defer utils.ContextMainIterFunc(ctx)()
			if !once {
				once = true
				defer utils.ContextMainReadyFunc(ctx)()
			}
			if !utils.SelectContextOrWaitChan(ctx, ticker.C) {
				return ctx.Err()
			}

			if step == kidnapAt {
				// The robot is carried somewhere else; its wheels report
				// nothing but the usual slip.
				robot.truth = kidnapPose
				odom = pose.Compose(odom, odomSlip)
				logger.Infow("kidnapped", "truth", robot.truth.String())
			} else {
				prev := robot.truth
				robot.advance(simStepLen)
				odom = pose.Compose(odom, pose.Compose(pose.Difference(robot.truth, prev), odomSlip))
			}
			if step == kidnapAt+2 && args.Kidnap {
				l.TriggerGlobalLocalization()
			}

			force := l.Lifecycle() == loc2d.Relocalizing
			scan := testutils.SimulateScan(world, robot.truth, args.Beams, simMaxRange)
			accepted, err := l.Update(scan, odom, time.Now(), force)
			if err != nil {
				return err
			}

			est := l.Pose()
			diff := pose.Difference(est, robot.truth)
			posErrs = append(posErrs, diff.Translation().Norm())
			headingErrs = append(headingErrs, math.Abs(diff.Theta))
			truthPath = append(truthPath, robot.truth)
			estPath = append(estPath, est)
			logger.Infow("step",
				"i", step,
				"accepted", accepted,
				"lifecycle", l.Lifecycle().String(),
				"truth", robot.truth.String(),
				"estimate", est.String(),
			)
			return nil
		}()
		if err != nil {
			return err
		}
	}

	mean, err := stats.Mean(posErrs)
	median, err2 := stats.Median(posErrs)
	p95, err3 := stats.Percentile(posErrs, 95)
	maxHeading, err4 := stats.Max(headingErrs)
	if err := multierr.Combine(err, err2, err3, err4); err != nil {
		return err
	}
	final := posErrs[len(posErrs)-1]
	logger.Infow("run complete",
		"steps", args.Steps,
		"mean_err_m", mean,
		"median_err_m", median,
		"p95_err_m", p95,
		"final_err_m", final,
		"max_heading_err_rad", maxHeading,
	)

	if args.MapOut != "" {
		if err := writeMap(world, args.MapOut); err != nil {
			return err
		}
		logger.Infow("map written", "path", args.MapOut)
	}
	if args.RenderOut != "" {
		if err := renderRun(world, truthPath, estPath, args.RenderOut); err != nil {
			return err
		}
		logger.Infow("render written", "path", args.RenderOut)
	}
	if final > trackFailLimit {
		return errors.Errorf("tracking failed: final position error %.3fm", final)
	}
	return nil
}

func writeMap(g *gridmap.OccupancyGrid, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return g.Write(f)
}

const (
	renderScale    = 16 // pixels per cell
	renderMaxWidth = 800
)

// renderRun draws the world with the true path in green and the estimated
// path in red, scaled down to a shareable size.
func renderRun(g *gridmap.OccupancyGrid, truthPath, estPath []pose.Pose2D, path string) (err error) {
	minC, maxC, ok := g.Bounds()
	if !ok {
		return errors.New("nothing to render")
	}
	nx := maxC.X - minC.X + 1
	ny := maxC.Y - minC.Y + 1
	dc := gg.NewContext(nx*renderScale, ny*renderScale)
	dc.SetColor(color.White)
	dc.Clear()
	g.Iterate(func(c gridmap.Cell, s gridmap.CellState) bool {
		if s == gridmap.CellOccupied {
			dc.SetColor(color.Black)
		} else {
			dc.SetColor(color.RGBA{230, 230, 230, 255})
		}
		dc.DrawRectangle(
			float64((c.X-minC.X)*renderScale),
			float64((ny-1-(c.Y-minC.Y))*renderScale),
			renderScale, renderScale)
		dc.Fill()
		return true
	})

	toPx := func(p pose.Pose2D) (float64, float64) {
		x := (p.X/g.Resolution() - float64(minC.X)) * renderScale
		y := (float64(ny) - (p.Y/g.Resolution() - float64(minC.Y))) * renderScale
		return x, y
	}
	drawPath := func(pts []pose.Pose2D, c color.Color) {
		if len(pts) < 2 {
			return
		}
		dc.SetColor(c)
		dc.SetLineWidth(3)
		px, py := toPx(pts[0])
		dc.MoveTo(px, py)
		for _, p := range pts[1:] {
			px, py = toPx(p)
			dc.LineTo(px, py)
		}
		dc.Stroke()
	}
	drawPath(truthPath, color.RGBA{29, 131, 72, 255})
	drawPath(estPath, color.RGBA{218, 68, 55, 255})

	img := dc.Image()
	if b := img.Bounds(); b.Dx() > renderMaxWidth {
		dst := image.NewRGBA(image.Rect(0, 0, renderMaxWidth, b.Dy()*renderMaxWidth/b.Dx()))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	return png.Encode(f, img)
}
