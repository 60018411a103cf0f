// Package rtgen writes synthetic radiotherapy DICOM files for tests:
// plan/struct/dose triplets with working cross-references, unrelated
// modalities, and deliberately broken files.
package rtgen

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	uidRoot = "1.2.826.0.1.3680043.8.498"

	sopClassRTPlan   = "1.2.840.10008.5.1.4.1.1.481.5"
	sopClassRTStruct = "1.2.840.10008.5.1.4.1.1.481.3"
	sopClassRTDose   = "1.2.840.10008.5.1.4.1.1.481.2"
	sopClassCTImage  = "1.2.840.10008.5.1.4.1.1.2"

	transferSyntaxExplicitVRLE = "1.2.840.10008.1.2.1"
)

// UID derives a deterministic DICOM UID from a seed string, so fixtures can
// cross-reference each other without coordination.
func UID(seed string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return fmt.Sprintf("%s.%d", uidRoot, h.Sum64())
}

// ROISpec describes one contour for a generated structure set.
type ROISpec struct {
	Number int
	Name   string
	Type   string
}

// FileSetSpec describes one synthetic plan file-set. Zero-value fields get
// sensible defaults from Normalize.
type FileSetSpec struct {
	MRN         string
	PatientName string
	StudyUID    string

	PlanUID   string
	StructUID string
	DoseUID   string

	// PlanRefStructUID is the struct UID the plan references; defaults to
	// StructUID. OmitStructRef drops the reference sequence entirely.
	PlanRefStructUID string
	OmitStructRef    bool

	// DoseRefPlanUID is the plan UID the dose references; defaults to
	// PlanUID. OmitPlanRef drops the reference sequence entirely.
	DoseRefPlanUID string
	OmitPlanRef    bool

	PlanLabel         string
	PlanDate          string // DICOM DA, e.g. "20240315"
	Physician         string // DICOM PN, e.g. "SMITH^JANE"
	RxDoseGy          float64
	Fractions         int
	DoseSummationType string
	ROIs              []ROISpec
}

// Normalize fills defaults so specs can stay terse in tests.
func (s *FileSetSpec) Normalize() {
	if s.MRN == "" {
		s.MRN = "MRN001"
	}
	if s.PatientName == "" {
		s.PatientName = "DOE^JOHN"
	}
	if s.StudyUID == "" {
		s.StudyUID = UID(s.MRN + "_study")
	}
	if s.PlanUID == "" {
		s.PlanUID = UID(s.MRN + "_plan")
	}
	if s.StructUID == "" {
		s.StructUID = UID(s.MRN + "_struct")
	}
	if s.DoseUID == "" {
		s.DoseUID = UID(s.MRN + "_dose")
	}
	if s.PlanRefStructUID == "" {
		s.PlanRefStructUID = s.StructUID
	}
	if s.DoseRefPlanUID == "" {
		s.DoseRefPlanUID = s.PlanUID
	}
	if s.PlanLabel == "" {
		s.PlanLabel = "Plan1"
	}
	if s.PlanDate == "" {
		s.PlanDate = "20240315"
	}
	if s.Physician == "" {
		s.Physician = "SMITH^JANE"
	}
	if s.RxDoseGy == 0 {
		s.RxDoseGy = 60.0
	}
	if s.Fractions == 0 {
		s.Fractions = 30
	}
	if s.DoseSummationType == "" {
		s.DoseSummationType = "PLAN"
	}
	if len(s.ROIs) == 0 {
		s.ROIs = []ROISpec{
			{Number: 1, Name: "PTV", Type: "PTV"},
			{Number: 2, Name: "Spinal Cord", Type: "ORGAN"},
		}
	}
}

// WriteFileSet writes the plan, struct and dose files of a spec into dir
// and returns their paths in that order.
func WriteFileSet(dir string, spec FileSetSpec) (planPath, structPath, dosePath string, err error) {
	spec.Normalize()

	planPath = filepath.Join(dir, fmt.Sprintf("rtplan_%s.dcm", spec.MRN))
	structPath = filepath.Join(dir, fmt.Sprintf("rtstruct_%s.dcm", spec.MRN))
	dosePath = filepath.Join(dir, fmt.Sprintf("rtdose_%s.dcm", spec.MRN))

	if err = WritePlan(planPath, spec); err != nil {
		return "", "", "", err
	}
	if err = WriteStruct(structPath, spec); err != nil {
		return "", "", "", err
	}
	if err = WriteDose(dosePath, spec); err != nil {
		return "", "", "", err
	}
	return planPath, structPath, dosePath, nil
}

// WritePlan writes the RT Plan file of a spec.
func WritePlan(path string, spec FileSetSpec) error {
	spec.Normalize()

	elements := baseElements(sopClassRTPlan, spec.PlanUID, "RTPLAN", spec)
	elements = append(elements,
		mustNewElement(tag.RTPlanLabel, []string{spec.PlanLabel}),
		mustNewElement(tag.RTPlanName, []string{spec.PlanLabel}),
		mustNewElement(tag.RTPlanDate, []string{spec.PlanDate}),
		mustNewElement(tag.RTPlanTime, []string{"120000"}),
		mustNewElement(tag.PhysiciansOfRecord, []string{spec.Physician}),
		mustNewElement(tag.DoseReferenceSequence, [][]*dicom.Element{{
			mustNewElement(tag.TargetPrescriptionDose, []string{fmt.Sprintf("%g", spec.RxDoseGy)}),
		}}),
		mustNewElement(tag.FractionGroupSequence, [][]*dicom.Element{{
			mustNewElement(tag.NumberOfFractionsPlanned, []string{fmt.Sprintf("%d", spec.Fractions)}),
		}}),
		mustNewElement(tag.BeamSequence, [][]*dicom.Element{
			{mustNewElement(tag.BeamName, []string{"Field 1"})},
			{mustNewElement(tag.BeamName, []string{"Field 2"})},
		}),
	)

	if !spec.OmitStructRef {
		elements = append(elements,
			mustNewElement(tag.ReferencedStructureSetSequence, [][]*dicom.Element{{
				mustNewElement(tag.ReferencedSOPClassUID, []string{sopClassRTStruct}),
				mustNewElement(tag.ReferencedSOPInstanceUID, []string{spec.PlanRefStructUID}),
			}}),
		)
	}

	return writeDataset(path, elements)
}

// WriteStruct writes the RT Structure Set file of a spec.
func WriteStruct(path string, spec FileSetSpec) error {
	spec.Normalize()

	rois := make([][]*dicom.Element, 0, len(spec.ROIs))
	observations := make([][]*dicom.Element, 0, len(spec.ROIs))
	for _, roi := range spec.ROIs {
		rois = append(rois, []*dicom.Element{
			mustNewElement(tag.ROINumber, []string{fmt.Sprintf("%d", roi.Number)}),
			mustNewElement(tag.ROIName, []string{roi.Name}),
		})
		observations = append(observations, []*dicom.Element{
			mustNewElement(tag.ReferencedROINumber, []string{fmt.Sprintf("%d", roi.Number)}),
			mustNewElement(tag.RTROIInterpretedType, []string{roi.Type}),
		})
	}

	elements := baseElements(sopClassRTStruct, spec.StructUID, "RTSTRUCT", spec)
	elements = append(elements,
		mustNewElement(tag.StructureSetLabel, []string{"STRUCTURES"}),
		mustNewElement(tag.StructureSetROISequence, rois),
		mustNewElement(tag.RTROIObservationsSequence, observations),
	)

	return writeDataset(path, elements)
}

// WriteDose writes the RT Dose file of a spec.
func WriteDose(path string, spec FileSetSpec) error {
	spec.Normalize()

	elements := baseElements(sopClassRTDose, spec.DoseUID, "RTDOSE", spec)
	elements = append(elements,
		mustNewElement(tag.DoseSummationType, []string{spec.DoseSummationType}),
		mustNewElement(tag.DoseUnits, []string{"GY"}),
	)

	if !spec.OmitPlanRef {
		elements = append(elements,
			mustNewElement(tag.ReferencedRTPlanSequence, [][]*dicom.Element{{
				mustNewElement(tag.ReferencedSOPClassUID, []string{sopClassRTPlan}),
				mustNewElement(tag.ReferencedSOPInstanceUID, []string{spec.DoseRefPlanUID}),
			}}),
		)
	}

	return writeDataset(path, elements)
}

// WriteOther writes a non-RT DICOM file (a CT slice) belonging to a study.
func WriteOther(path, mrn, patientName, studyUID, sopUID string) error {
	elements := []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{sopClassCTImage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopUID}),
		mustNewElement(tag.TransferSyntaxUID, []string{transferSyntaxExplicitVRLE}),
		mustNewElement(tag.SOPClassUID, []string{sopClassCTImage}),
		mustNewElement(tag.SOPInstanceUID, []string{sopUID}),
		mustNewElement(tag.Modality, []string{"CT"}),
		mustNewElement(tag.PatientName, []string{patientName}),
		mustNewElement(tag.PatientID, []string{mrn}),
		mustNewElement(tag.StudyInstanceUID, []string{studyUID}),
	}
	return writeDataset(path, elements)
}

// WriteMissingPatientID writes a structurally valid DICOM file lacking the
// PatientID tag, which the scanner must skip without crashing.
func WriteMissingPatientID(path, studyUID, sopUID string) error {
	elements := []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{sopClassCTImage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopUID}),
		mustNewElement(tag.TransferSyntaxUID, []string{transferSyntaxExplicitVRLE}),
		mustNewElement(tag.SOPClassUID, []string{sopClassCTImage}),
		mustNewElement(tag.SOPInstanceUID, []string{sopUID}),
		mustNewElement(tag.Modality, []string{"CT"}),
		mustNewElement(tag.PatientName, []string{"DOE^JOHN"}),
		mustNewElement(tag.StudyInstanceUID, []string{studyUID}),
	}
	return writeDataset(path, elements)
}

// WriteJunk writes a file that is not DICOM at all.
func WriteJunk(path string) error {
	return os.WriteFile(path, []byte("this is not a dicom file\n"), 0644)
}

// baseElements builds the identifying elements shared by every RT fixture.
func baseElements(sopClass, sopUID, modality string, spec FileSetSpec) []*dicom.Element {
	return []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{sopClass}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sopUID}),
		mustNewElement(tag.TransferSyntaxUID, []string{transferSyntaxExplicitVRLE}),
		mustNewElement(tag.SOPClassUID, []string{sopClass}),
		mustNewElement(tag.SOPInstanceUID, []string{sopUID}),
		mustNewElement(tag.Modality, []string{modality}),
		mustNewElement(tag.PatientName, []string{spec.PatientName}),
		mustNewElement(tag.PatientID, []string{spec.MRN}),
		mustNewElement(tag.StudyInstanceUID, []string{spec.StudyUID}),
		mustNewElement(tag.StudyDate, []string{spec.PlanDate}),
		mustNewElement(tag.StudyTime, []string{"090000"}),
	}
}

func mustNewElement(t tag.Tag, value interface{}) *dicom.Element {
	elem, err := dicom.NewElement(t, value)
	if err != nil {
		panic(fmt.Sprintf("failed to create element %v: %v", t, err))
	}
	return elem
}

func writeDataset(filename string, elements []*dicom.Element) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

// Touch backdates a fixture's modification time, for tests exercising
// timestamp-dependent behavior.
func Touch(path string, mtime time.Time) error {
	return os.Chtimes(path, mtime, mtime)
}
