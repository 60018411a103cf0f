package dicom

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/cutright/rtscan/internal/util"
)

// ROI is one contoured structure from an RT Structure Set.
type ROI struct {
	Number int
	Name   string
	// Type is the RTROIInterpretedType (PTV, ORGAN, EXTERNAL, ...), empty
	// when the structure set carries no observation for the ROI.
	Type string
}

// PlanDetails is the full semantic parse of one complete plan file-set,
// everything downstream consumers need without keeping datasets in memory.
type PlanDetails struct {
	PlanUID   string
	PlanLabel string
	PlanName  string
	PlanDate  time.Time
	Physician string

	// RxDoseGy is the total target prescription dose summed over the
	// plan's dose reference sequence.
	RxDoseGy  float64
	Fractions int
	Beams     int

	DoseSummationType string
	DoseUnits         string

	ROIs []ROI
}

// ParsePlanDetails fully parses a plan/struct/dose triplet. Each path must
// point at a readable file of the corresponding modality; pixel and dose
// grid data are never loaded.
func ParsePlanDetails(planPath, structPath, dosePath string) (*PlanDetails, error) {
	planDS, err := parseHeader(planPath)
	if err != nil {
		return nil, fmt.Errorf("parse rtplan %s: %w", planPath, err)
	}
	structDS, err := parseHeader(structPath)
	if err != nil {
		return nil, fmt.Errorf("parse rtstruct %s: %w", structPath, err)
	}
	doseDS, err := parseHeader(dosePath)
	if err != nil {
		return nil, fmt.Errorf("parse rtdose %s: %w", dosePath, err)
	}

	d := &PlanDetails{}

	d.PlanUID, _ = util.ElementString(planDS, tag.SOPInstanceUID)
	d.PlanLabel, _ = util.ElementString(planDS, tag.RTPlanLabel)
	d.PlanName, _ = util.ElementString(planDS, tag.RTPlanName)

	da, _ := util.ElementString(planDS, tag.RTPlanDate)
	tm, _ := util.ElementString(planDS, tag.RTPlanTime)
	if t, ok := util.ParseDATM(da, tm); ok {
		d.PlanDate = t
	}

	physician, ok := util.ElementString(planDS, tag.PhysiciansOfRecord)
	if !ok || physician == "" {
		physician, _ = util.ElementString(planDS, tag.ReferringPhysicianName)
	}
	d.Physician = util.FormatPersonName(physician)

	d.RxDoseGy = targetPrescriptionDose(planDS)
	d.Fractions = plannedFractions(planDS)
	d.Beams = len(util.SequenceItems(planDS, tag.BeamSequence))

	d.DoseSummationType, _ = util.ElementString(doseDS, tag.DoseSummationType)
	d.DoseUnits, _ = util.ElementString(doseDS, tag.DoseUnits)

	d.ROIs = structureROIs(structDS)

	return d, nil
}

// targetPrescriptionDose sums TargetPrescriptionDose over the dose
// reference sequence. Plans with multiple dose references (e.g. SIB plans)
// report the total.
func targetPrescriptionDose(ds dicom.Dataset) float64 {
	var total float64
	for _, item := range util.SequenceItems(ds, tag.DoseReferenceSequence) {
		raw, ok := util.ItemString(item, tag.TargetPrescriptionDose)
		if !ok {
			continue
		}
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			total += v
		}
	}
	return total
}

func plannedFractions(ds dicom.Dataset) int {
	items := util.SequenceItems(ds, tag.FractionGroupSequence)
	if len(items) == 0 {
		return 0
	}
	raw, ok := util.ItemString(items[0], tag.NumberOfFractionsPlanned)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}

// structureROIs joins StructureSetROISequence with RTROIObservationsSequence
// to produce each ROI's number, name and interpreted type.
func structureROIs(ds dicom.Dataset) []ROI {
	byNumber := make(map[int]*ROI)

	for _, item := range util.SequenceItems(ds, tag.StructureSetROISequence) {
		raw, ok := util.ItemString(item, tag.ROINumber)
		if !ok {
			continue
		}
		number, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		name, _ := util.ItemString(item, tag.ROIName)
		byNumber[number] = &ROI{Number: number, Name: name}
	}

	for _, item := range util.SequenceItems(ds, tag.RTROIObservationsSequence) {
		raw, ok := util.ItemString(item, tag.ReferencedROINumber)
		if !ok {
			continue
		}
		number, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		if roi, found := byNumber[number]; found {
			roi.Type, _ = util.ItemString(item, tag.RTROIInterpretedType)
		}
	}

	rois := make([]ROI, 0, len(byNumber))
	for _, roi := range byNumber {
		rois = append(rois, *roi)
	}
	sort.Slice(rois, func(i, j int) bool { return rois[i].Number < rois[j].Number })
	return rois
}
