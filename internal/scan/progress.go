package scan

import "github.com/cutright/rtscan/internal/dicom"

// Stage identifies which pipeline phase a progress event belongs to.
type Stage string

const (
	StageDiscovering   Stage = "discovering"
	StageExtracting    Stage = "extracting"
	StageResolving     Stage = "resolving"
	StageDetailParsing Stage = "detail_parsing"
)

// Event is one progress notification. Within a stage, Fraction never
// decreases and the last event carries 1.0.
type Event struct {
	Stage    Stage
	Label    string
	Fraction float64
}

// Observer receives a run's notifications. Calls arrive from the run's own
// goroutine, never from pool workers, and a superseded run stops calling its
// observer entirely. Implementations must not block: hand the value to your
// own loop and return.
type Observer interface {
	Progress(Event)
	TreeReady(*ResultTree)
	PlanDetails(*dicom.PlanDetails)
	ParsingComplete(fileSets int)
	RunFailed(error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) Progress(Event)                 {}
func (NopObserver) TreeReady(*ResultTree)          {}
func (NopObserver) PlanDetails(*dicom.PlanDetails) {}
func (NopObserver) ParsingComplete(int)            {}
func (NopObserver) RunFailed(error)                {}
