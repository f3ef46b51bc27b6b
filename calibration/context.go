package calibration

import (
	"time"
)

// Phase identifies a step of the calibration state machine. Phases are
// strictly ordered; a run never skips or revisits one.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhasePrepare
	PhaseClearFromLimit
	PhaseFindTopLimit
	PhaseFindBottomLimit
	PhaseVerifyTop
	PhaseFinalize
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhasePrepare:
		return "Prepare"
	case PhaseClearFromLimit:
		return "ClearFromLimit"
	case PhaseFindTopLimit:
		return "FindTopLimit"
	case PhaseFindBottomLimit:
		return "FindBottomLimit"
	case PhaseVerifyTop:
		return "VerifyTop"
	case PhaseFinalize:
		return "Finalize"
	case PhaseDone:
		return "Done"
	default:
		return "Phase(?)"
	}
}

// Context is the state threaded through a single run. Each phase receives
// it by value and returns an updated copy; nothing else mutates it.
type Context struct {
	Shade             ShadeType
	AlreadyCalibrated bool
	TotalSteps        uint64
	VerifySteps       uint64
	StartedAt         time.Time
	Completed         []Phase
}

// Result is produced by a run that reached Done.
type Result struct {
	TotalSteps        uint64
	Asymmetry         uint64
	AsymmetryExceeded bool
	AlreadyCalibrated bool
	PhasesCompleted   []Phase
	Elapsed           time.Duration
}
