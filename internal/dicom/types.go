// Package dicom reads radiotherapy DICOM file headers and full plan
// file-sets, classifying each file by modality and extracting the
// cross-references that tie plans, structure sets and doses together.
package dicom

import (
	"fmt"
	"time"
)

// Modality classifies a DICOM file for plan file-set assembly. Anything
// outside the three RT types is ModalityOther.
type Modality string

const (
	ModalityRTPlan   Modality = "rtplan"
	ModalityRTStruct Modality = "rtstruct"
	ModalityRTDose   Modality = "rtdose"
	ModalityOther    Modality = "other"
)

// ParseModality maps a raw Modality tag value to a Modality.
func ParseModality(raw string) Modality {
	switch Modality(raw) {
	case ModalityRTPlan, ModalityRTStruct, ModalityRTDose:
		return Modality(raw)
	default:
		return ModalityOther
	}
}

// RefKind identifies what a cross-reference UID points at.
type RefKind string

const (
	// RefStruct is an RT Plan's reference to its structure set.
	RefStruct RefKind = "struct"
	// RefPlan is an RT Dose's reference to its plan.
	RefPlan RefKind = "plan"
)

// Reference is a (kind, uid) pair declaring that a file references another
// file's SOP Instance UID.
type Reference struct {
	Kind RefKind
	UID  string
}

// TagRecord is the outcome of a successful header decode. A record exists
// only for files that decoded and carried all four required identifying
// tags; everything else yields a SkipError instead.
type TagRecord struct {
	Path        string
	Modality    Modality
	StudyUID    string
	SOPUID      string
	MRN         string
	PatientName string
	ModTime     time.Time
	Size        int64

	// DoseSummationType is normalized to PLAN or BRACHY; any other value
	// (or absence) is recorded as IGNORED.
	DoseSummationType string

	// Ref is the plan→struct or dose→plan reference, nil for rtstruct and
	// other files, and for plans or doses that do not carry the sequence.
	Ref *Reference
}

// SkipReason says why a file was excluded from the index.
type SkipReason string

const (
	SkipNotDICOM           SkipReason = "not_dicom"
	SkipMissingRequiredTag SkipReason = "missing_required_tag"
	SkipKnownBadVendorFile SkipReason = "known_bad_vendor_file"
)

// SkipError reports a per-file, non-fatal decode outcome. The file is
// logged and excluded; the run continues.
type SkipError struct {
	Path   string
	Reason SkipReason
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skip %s: %s", e.Path, e.Reason)
}

// FatalDecodeError reports an allocation failure during header decode of a
// file that does not match a known vendor defect pattern. It aborts the run.
type FatalDecodeError struct {
	Path string
	Err  error
}

func (e *FatalDecodeError) Error() string {
	return fmt.Sprintf("fatal decode failure for %s: %v", e.Path, e.Err)
}

func (e *FatalDecodeError) Unwrap() error { return e.Err }
