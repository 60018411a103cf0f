package scan

import (
	"sync"

	"github.com/cutright/rtscan/internal/dicom"
)

// parseDetails runs the second pool: a full semantic parse of every complete
// plan file-set. Incomplete sets cannot be fully parsed and are skipped.
// When a slot holds several files the first by arrival order represents it.
// Returns the number of file-sets processed.
func (r *Run) parseDetails(tree *ResultTree) int {
	sets := tree.CompleteSets()
	total := len(sets)
	if total == 0 {
		r.notifyProgress(Event{Stage: StageDetailParsing, Label: "no complete file-sets", Fraction: 1.0})
		return 0
	}

	workers := poolSize(r.opts.Workers, total)

	type outcome struct {
		planUID string
		details *dicom.PlanDetails
		err     error
	}
	taskChan := make(chan PlanNode, total)
	resultChan := make(chan outcome, total)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for set := range taskChan {
				details, err := dicom.ParsePlanDetails(
					set.Plan.Path, set.Structs[0].Path, set.Doses[0].Path)
				resultChan <- outcome{planUID: set.PlanUID, details: details, err: err}
			}
		}()
	}

	for _, set := range sets {
		taskChan <- set
	}
	close(taskChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	completed := 0
	for out := range resultChan {
		completed++
		if out.err == nil && r.current() {
			r.opts.Observer.PlanDetails(out.details)
		}
		r.notifyProgress(Event{
			Stage:    StageDetailParsing,
			Label:    out.planUID,
			Fraction: float64(completed) / float64(total),
		})
	}
	return total
}
