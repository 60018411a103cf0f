package tests

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	internaldicom "github.com/cutright/rtscan/internal/dicom"
	"github.com/cutright/rtscan/internal/rtgen"
	"github.com/cutright/rtscan/internal/scan"
)

// collector records everything the pipeline reports.
type collector struct {
	mu       sync.Mutex
	events   []scan.Event
	tree     *scan.ResultTree
	details  []*internaldicom.PlanDetails
	complete int
	failed   error
}

func (c *collector) Progress(ev scan.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) TreeReady(t *scan.ResultTree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = t
}

func (c *collector) PlanDetails(d *internaldicom.PlanDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details = append(c.details, d)
}

func (c *collector) ParsingComplete(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = n
}

func (c *collector) RunFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = err
}

// TestFullPipeline_MixedDirectory drives the whole pipeline over a directory
// holding two patients, an orphan dose, a CT slice, a tagless file and junk,
// and checks every reported bucket.
func TestFullPipeline_MixedDirectory(t *testing.T) {
	dir := t.TempDir()

	complete := rtgen.FileSetSpec{MRN: "PT001", PatientName: "ADAMS^ALICE", PlanLabel: "Breast IMRT"}
	if _, _, _, err := rtgen.WriteFileSet(dir, complete); err != nil {
		t.Fatal(err)
	}
	complete.Normalize()

	partial := rtgen.FileSetSpec{MRN: "PT002", PatientName: "BAKER^BOB"}
	partial.Normalize()
	if err := rtgen.WritePlan(filepath.Join(dir, "pt002_plan.dcm"), partial); err != nil {
		t.Fatal(err)
	}
	if err := rtgen.WriteDose(filepath.Join(dir, "pt002_dose.dcm"), partial); err != nil {
		t.Fatal(err)
	}

	orphan := rtgen.FileSetSpec{MRN: "PT003", PatientName: "CLARK^CARA"}
	orphan.Normalize()
	if err := rtgen.WriteDose(filepath.Join(dir, "pt003_dose.dcm"), orphan); err != nil {
		t.Fatal(err)
	}

	if err := rtgen.WriteOther(filepath.Join(dir, "ct.dcm"), "PT001", "ADAMS^ALICE", complete.StudyUID, rtgen.UID("ct1")); err != nil {
		t.Fatal(err)
	}
	if err := rtgen.WriteMissingPatientID(filepath.Join(dir, "tagless.dcm"), rtgen.UID("s"), rtgen.UID("i")); err != nil {
		t.Fatal(err)
	}
	if err := rtgen.WriteJunk(filepath.Join(dir, "readme.dcm")); err != nil {
		t.Fatal(err)
	}

	obs := &collector{}
	run := scan.NewScanner().Start(dir, scan.Options{Recurse: true, Workers: 4, Observer: obs})
	if err := run.Wait(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	tree := run.Tree()

	if len(tree.Patients) != 2 {
		t.Fatalf("len(Patients) = %d, want 2", len(tree.Patients))
	}
	if tree.PlanCount() != 2 {
		t.Errorf("PlanCount = %d, want 2", tree.PlanCount())
	}
	if len(tree.IncompletePlans) != 1 || tree.IncompletePlans[0] != partial.PlanUID {
		t.Errorf("IncompletePlans = %v, want [%s]", tree.IncompletePlans, partial.PlanUID)
	}
	if len(tree.Orphans) != 1 || tree.Orphans[0].MRN != "PT003" {
		t.Errorf("Orphans = %+v, want PT003's dose", tree.Orphans)
	}
	if len(tree.Skips) != 2 {
		t.Errorf("len(Skips) = %d, want tagless + junk", len(tree.Skips))
	}
	if got := len(tree.OtherByStudy[complete.StudyUID]); got != 1 {
		t.Errorf("other files for study = %d, want 1", got)
	}

	if obs.failed != nil {
		t.Errorf("RunFailed called: %v", obs.failed)
	}
	if obs.tree == nil {
		t.Error("TreeReady never delivered")
	}
	if obs.complete != 1 {
		t.Errorf("ParsingComplete = %d, want 1 complete file-set", obs.complete)
	}
	if len(obs.details) != 1 {
		t.Fatalf("len(details) = %d, want 1", len(obs.details))
	}
	d := obs.details[0]
	if d.PlanUID != complete.PlanUID {
		t.Errorf("details PlanUID = %q, want %q", d.PlanUID, complete.PlanUID)
	}
	if d.PlanLabel != "Breast IMRT" {
		t.Errorf("details PlanLabel = %q, want Breast IMRT", d.PlanLabel)
	}
	if d.RxDoseGy != 60 {
		t.Errorf("details RxDoseGy = %v, want 60", d.RxDoseGy)
	}
	if len(d.ROIs) != 2 {
		t.Errorf("details ROIs = %v, want the 2 default structures", d.ROIs)
	}
}

// TestFullPipeline_OrderIndependence scans two directories holding the same
// triplet under discovery orders that put the plan first and last, and
// requires structurally identical results.
func TestFullPipeline_OrderIndependence(t *testing.T) {
	spec := rtgen.FileSetSpec{MRN: "PT010"}
	spec.Normalize()

	planFirst := t.TempDir()
	if err := rtgen.WritePlan(filepath.Join(planFirst, "a_plan.dcm"), spec); err != nil {
		t.Fatal(err)
	}
	if err := rtgen.WriteStruct(filepath.Join(planFirst, "b_struct.dcm"), spec); err != nil {
		t.Fatal(err)
	}
	if err := rtgen.WriteDose(filepath.Join(planFirst, "c_dose.dcm"), spec); err != nil {
		t.Fatal(err)
	}

	planLast := t.TempDir()
	if err := rtgen.WriteDose(filepath.Join(planLast, "a_dose.dcm"), spec); err != nil {
		t.Fatal(err)
	}
	if err := rtgen.WriteStruct(filepath.Join(planLast, "b_struct.dcm"), spec); err != nil {
		t.Fatal(err)
	}
	if err := rtgen.WritePlan(filepath.Join(planLast, "c_plan.dcm"), spec); err != nil {
		t.Fatal(err)
	}

	trees := make([]*scan.ResultTree, 2)
	for i, dir := range []string{planFirst, planLast} {
		run := scan.NewScanner().Start(dir, scan.Options{Recurse: true, Workers: 3})
		if err := run.Wait(); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
		trees[i] = run.Tree()
	}

	for i, tree := range trees {
		if tree.PlanCount() != 1 {
			t.Fatalf("tree %d PlanCount = %d, want 1", i, tree.PlanCount())
		}
		plan := tree.Patients[0].Studies[0].Plans[0]
		if !plan.Complete {
			t.Errorf("tree %d plan not complete", i)
		}
		if plan.PlanUID != spec.PlanUID {
			t.Errorf("tree %d plan UID = %q, want %q", i, plan.PlanUID, spec.PlanUID)
		}
		if len(plan.Structs) != 1 || len(plan.Doses) != 1 {
			t.Errorf("tree %d slots = %d structs, %d doses", i, len(plan.Structs), len(plan.Doses))
		}
	}
}

// TestFullPipeline_SupersededRunStaysSilent starts a scan, immediately
// supersedes it, and checks the stale run never delivers results.
func TestFullPipeline_SupersededRunStaysSilent(t *testing.T) {
	dir := t.TempDir()
	for _, mrn := range []string{"PT020", "PT021", "PT022"} {
		sub := filepath.Join(dir, mrn)
		if err := os.Mkdir(sub, 0755); err != nil {
			t.Fatal(err)
		}
		if _, _, _, err := rtgen.WriteFileSet(sub, rtgen.FileSetSpec{MRN: mrn}); err != nil {
			t.Fatal(err)
		}
	}

	s := scan.NewScanner()
	staleObs := &collector{}
	stale := s.Start(dir, scan.Options{Recurse: true, Workers: 1, Observer: staleObs})

	freshObs := &collector{}
	fresh := s.Start(dir, scan.Options{Recurse: true, Workers: 1, Observer: freshObs})

	if err := fresh.Wait(); err != nil {
		t.Fatalf("fresh run failed: %v", err)
	}
	_ = stale.Wait()

	if fresh.Tree() == nil || freshObs.tree == nil {
		t.Error("fresh run must publish its tree")
	}
	if fresh.Tree().PlanCount() != 3 {
		t.Errorf("fresh PlanCount = %d, want 3", fresh.Tree().PlanCount())
	}
	if stale.State() == scan.StateSuperseded {
		if stale.Tree() != nil {
			t.Error("superseded run must not retain a tree")
		}
		if staleObs.tree != nil {
			t.Error("superseded run's observer must not see TreeReady")
		}
	}
}
