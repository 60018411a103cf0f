package scan

import "sort"

// PlanNode is one plan file-set in the published tree.
type PlanNode struct {
	PlanUID  string
	Plan     SlotFile
	Structs  []SlotFile
	Doses    []SlotFile
	Complete bool
}

// StudyNode groups the plans of one study.
type StudyNode struct {
	StudyUID string
	Plans    []PlanNode
}

// PatientNode groups the studies of one patient.
type PatientNode struct {
	MRN     string
	Name    string
	Studies []StudyNode
}

// ResultTree is the immutable materialization of one run's AssociationIndex.
// Once published it is never mutated and may be read freely from any
// goroutine.
type ResultTree struct {
	Patients []PatientNode

	// IncompletePlans lists the SOP UIDs of plans missing at least one
	// slot, sorted.
	IncompletePlans []string

	Orphans []Orphan
	Skips   []SkipRecord

	// OtherByStudy holds the paths of valid DICOM files outside the three
	// RT modalities, bucketed by study UID.
	OtherByStudy map[string][]string

	// FilesDiscovered counts every candidate path the discoverer produced.
	FilesDiscovered int
	// RecordsIndexed counts files that yielded a TagRecord.
	RecordsIndexed int
	// BytesIndexed sums the sizes of indexed files.
	BytesIndexed int64
}

// PlanCount returns the total number of plans across the tree.
func (t *ResultTree) PlanCount() int {
	n := 0
	for _, p := range t.Patients {
		for _, s := range p.Studies {
			n += len(s.Plans)
		}
	}
	return n
}

// CompleteSets returns every complete plan file-set, ordered as the tree is.
func (t *ResultTree) CompleteSets() []PlanNode {
	var sets []PlanNode
	for _, p := range t.Patients {
		for _, s := range p.Studies {
			for _, plan := range s.Plans {
				if plan.Complete {
					sets = append(sets, plan)
				}
			}
		}
	}
	return sets
}

// Materialize converts the resolved index into a ResultTree. Nodes are
// sorted by key so two runs over the same files produce structurally
// identical trees; slot contents keep their arrival order. Calling this
// before Resolve is a programming error.
func (ix *AssociationIndex) Materialize(filesDiscovered int) *ResultTree {
	if !ix.resolved {
		panic("AssociationIndex.Materialize called before Resolve")
	}

	tree := &ResultTree{
		Orphans:         ix.orphans,
		Skips:           ix.skips,
		OtherByStudy:    ix.otherByStudy,
		FilesDiscovered: filesDiscovered,
		RecordsIndexed:  ix.records,
		BytesIndexed:    ix.bytes,
	}

	mrns := sortedKeys(ix.plans)
	for _, mrn := range mrns {
		patient := PatientNode{MRN: mrn, Name: ix.patientNames[mrn]}
		for _, studyUID := range sortedKeys(ix.plans[mrn]) {
			study := StudyNode{StudyUID: studyUID}
			plans := ix.plans[mrn][studyUID]
			for _, planUID := range sortedKeys(plans) {
				fs := plans[planUID]
				node := PlanNode{
					PlanUID:  planUID,
					Plan:     fs.Plan,
					Structs:  fs.Structs,
					Doses:    fs.Doses,
					Complete: fs.Complete(),
				}
				if !node.Complete {
					tree.IncompletePlans = append(tree.IncompletePlans, planUID)
				}
				study.Plans = append(study.Plans, node)
			}
			patient.Studies = append(patient.Studies, study)
		}
		tree.Patients = append(tree.Patients, patient)
	}

	sort.Strings(tree.IncompletePlans)
	return tree
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
