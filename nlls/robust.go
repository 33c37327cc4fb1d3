package nlls

// tukeyB is the standard Tukey biweight tuning constant for 95 percent
// asymptotic efficiency on Gaussian residuals.
const tukeyB = 4.6851

// WeightKind selects the robust weighting function applied per residual when
// forming the normal equations.
type WeightKind uint8

const (
	// UnitWeight applies no reweighting.
	UnitWeight WeightKind = iota
	// CauchyWeight down-weights residuals smoothly past the scale parameter.
	CauchyWeight
	// StudentTWeight weights residuals by a t-distribution with the parameter
	// as degrees of freedom.
	StudentTWeight
	// TukeyWeight zeroes residuals past the biweight cutoff entirely.
	TukeyWeight
)

func (k WeightKind) String() string {
	switch k {
	case CauchyWeight:
		return "cauchy"
	case StudentTWeight:
		return "tstudent"
	case TukeyWeight:
		return "tukey"
	case UnitWeight:
		fallthrough
	default:
		return "unit"
	}
}

// RobustCost pairs a weighting function with its tuning parameter. The zero
// value is the unit weight.
type RobustCost struct {
	Kind  WeightKind
	Param float64
}

// RobustCostFromName maps a cost name and parameter to a RobustCost.
// Recognized names are "cauchy", "tstudent" and "tukey"; anything else,
// including the empty string, selects the unit weight. Unknown names are
// never an error.
func RobustCostFromName(name string, param float64) RobustCost {
	switch name {
	case "cauchy":
		return RobustCost{Kind: CauchyWeight, Param: param}
	case "tstudent":
		return RobustCost{Kind: StudentTWeight, Param: param}
	case "tukey":
		return RobustCost{Kind: TukeyWeight}
	default:
		return RobustCost{Kind: UnitWeight}
	}
}

// Weight returns the iteratively-reweighted-least-squares weight for a single
// residual value.
func (rc RobustCost) Weight(r float64) float64 {
	switch rc.Kind {
	case CauchyWeight:
		x := r / rc.Param
		return 1 / (1 + x*x)
	case StudentTWeight:
		return (rc.Param + 1) / (rc.Param + r*r)
	case TukeyWeight:
		if r < -tukeyB || r > tukeyB {
			return 0
		}
		x := r / tukeyB
		w := 1 - x*x
		return w * w
	case UnitWeight:
		fallthrough
	default:
		return 1
	}
}
