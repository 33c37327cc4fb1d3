package loc2d

// Lifecycle is the localizer's operating state. A new localizer starts out
// Bootstrapping, moves to Tracking once the odometry reference frame is
// recorded, and passes through Relocalizing after a global localization
// request until a scan matches the map well enough again.
type Lifecycle uint8

const (
	// Bootstrapping means no update has been accepted yet.
	Bootstrapping Lifecycle = iota
	// Tracking means the pose estimate follows odometry with scan-match
	// refinement.
	Tracking
	// Relocalizing means the estimate is not trusted; accepted updates run a
	// map-wide search before refinement.
	Relocalizing
)

func (s Lifecycle) String() string {
	switch s {
	case Tracking:
		return "tracking"
	case Relocalizing:
		return "relocalizing"
	case Bootstrapping:
		fallthrough
	default:
		return "bootstrapping"
	}
}
