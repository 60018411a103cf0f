package scan

import (
	"github.com/cutright/rtscan/internal/dicom"
)

// SlotFile is one file occupying a PlanFileSet slot.
type SlotFile struct {
	Path   string
	SOPUID string
}

// PlanFileSet groups the files of one treatment plan, keyed by the plan's
// SOP Instance UID. The plan slot holds exactly one file; struct and dose
// slots hold zero or more, in arrival order.
type PlanFileSet struct {
	MRN      string
	StudyUID string
	PlanUID  string

	Plan    SlotFile
	Structs []SlotFile
	Doses   []SlotFile

	// structRef is the struct SOP UID the plan references, empty when the
	// plan carries no reference sequence.
	structRef string
}

// Complete reports whether all three slots are populated.
func (fs *PlanFileSet) Complete() bool {
	return len(fs.Structs) > 0 && len(fs.Doses) > 0
}

// Orphan records a struct or dose file that could not be attached to any
// plan in the scanned set.
type Orphan struct {
	Path     string
	Modality dicom.Modality
	MRN      string
	StudyUID string
	SOPUID   string
	// RefUID is the cross-reference target that was never found, empty
	// when the file carried no reference at all.
	RefUID string
}

// SkipRecord is a per-file non-fatal exclusion.
type SkipRecord struct {
	Path   string
	Reason dicom.SkipReason
}

// AssociationIndex is the working state of one run: every record the header
// extraction produced, indexed for the resolver's joins. It is owned by its
// run and mutated single-threaded behind the extraction barrier.
type AssociationIndex struct {
	// plans is the patient tree: MRN -> study UID -> plan SOP UID.
	plans map[string]map[string]map[string]*PlanFileSet

	patientNames map[string]string

	structBySOP  map[string][]*dicom.TagRecord
	doseRecords  []*dicom.TagRecord
	otherByStudy map[string][]string

	orphans []Orphan
	skips   []SkipRecord

	resolved bool
	bytes    int64
	records  int
}

// NewAssociationIndex returns an empty index for one run.
func NewAssociationIndex() *AssociationIndex {
	return &AssociationIndex{
		plans:        make(map[string]map[string]map[string]*PlanFileSet),
		patientNames: make(map[string]string),
		structBySOP:  make(map[string][]*dicom.TagRecord),
		otherByStudy: make(map[string][]string),
	}
}

// Add records what one file declares about itself. No cross-file lookup
// happens here; joins wait for Resolve.
func (ix *AssociationIndex) Add(rec *dicom.TagRecord) {
	ix.records++
	ix.bytes += rec.Size
	if _, seen := ix.patientNames[rec.MRN]; !seen {
		ix.patientNames[rec.MRN] = rec.PatientName
	}

	switch rec.Modality {
	case dicom.ModalityRTPlan:
		fs := &PlanFileSet{
			MRN:      rec.MRN,
			StudyUID: rec.StudyUID,
			PlanUID:  rec.SOPUID,
			Plan:     SlotFile{Path: rec.Path, SOPUID: rec.SOPUID},
		}
		if rec.Ref != nil && rec.Ref.Kind == dicom.RefStruct {
			fs.structRef = rec.Ref.UID
		}
		ix.studyPlans(rec.MRN, rec.StudyUID)[rec.SOPUID] = fs

	case dicom.ModalityRTDose:
		ix.doseRecords = append(ix.doseRecords, rec)

	case dicom.ModalityRTStruct:
		ix.structBySOP[rec.SOPUID] = append(ix.structBySOP[rec.SOPUID], rec)

	default:
		ix.otherByStudy[rec.StudyUID] = append(ix.otherByStudy[rec.StudyUID], rec.Path)
	}
}

// AddSkip records a per-file exclusion.
func (ix *AssociationIndex) AddSkip(path string, reason dicom.SkipReason) {
	ix.skips = append(ix.skips, SkipRecord{Path: path, Reason: reason})
}

func (ix *AssociationIndex) studyPlans(mrn, studyUID string) map[string]*PlanFileSet {
	studies, ok := ix.plans[mrn]
	if !ok {
		studies = make(map[string]map[string]*PlanFileSet)
		ix.plans[mrn] = studies
	}
	plans, ok := studies[studyUID]
	if !ok {
		plans = make(map[string]*PlanFileSet)
		studies[studyUID] = plans
	}
	return plans
}

// Resolve joins doses and structs to their plans. It must run exactly once,
// after every extraction outcome has been indexed: the joins need the
// complete reference graph.
func (ix *AssociationIndex) Resolve() {
	if ix.resolved {
		panic("AssociationIndex.Resolve called twice")
	}
	ix.resolved = true

	// Dose -> plan. The referenced plan must live in the same patient and
	// study as the dose file; the plan UID alone is not trusted across
	// patient boundaries.
	for _, dose := range ix.doseRecords {
		var target *PlanFileSet
		if dose.Ref != nil && dose.Ref.Kind == dicom.RefPlan {
			if plans, ok := ix.plans[dose.MRN][dose.StudyUID]; ok {
				target = plans[dose.Ref.UID]
			}
		}
		if target == nil {
			ix.orphans = append(ix.orphans, Orphan{
				Path:     dose.Path,
				Modality: dicom.ModalityRTDose,
				MRN:      dose.MRN,
				StudyUID: dose.StudyUID,
				SOPUID:   dose.SOPUID,
				RefUID:   refUID(dose),
			})
			continue
		}
		target.Doses = append(target.Doses, SlotFile{Path: dose.Path, SOPUID: dose.SOPUID})
	}

	// Struct -> plan. Structure sets are looked up globally by their own
	// SOP UID, per the DICOM identifier contract.
	attached := make(map[string]bool)
	for _, studies := range ix.plans {
		for _, plans := range studies {
			for _, fs := range plans {
				if fs.structRef == "" {
					continue
				}
				for _, st := range ix.structBySOP[fs.structRef] {
					fs.Structs = append(fs.Structs, SlotFile{Path: st.Path, SOPUID: st.SOPUID})
					attached[st.Path] = true
				}
			}
		}
	}

	for _, records := range ix.structBySOP {
		for _, st := range records {
			if attached[st.Path] {
				continue
			}
			ix.orphans = append(ix.orphans, Orphan{
				Path:     st.Path,
				Modality: dicom.ModalityRTStruct,
				MRN:      st.MRN,
				StudyUID: st.StudyUID,
				SOPUID:   st.SOPUID,
			})
		}
	}
}

func refUID(rec *dicom.TagRecord) string {
	if rec.Ref == nil {
		return ""
	}
	return rec.Ref.UID
}
