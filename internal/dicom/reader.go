package dicom

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/cutright/rtscan/internal/util"
)

// DefaultKnownBadPatterns lists base-name substrings of vendor files whose
// header decode is known to blow up allocation. The only confirmed case is
// the IMPAC (Elekta MOSAIQ) DICOM cache files; the match is deliberately a
// literal substring and nothing smarter.
var DefaultKnownBadPatterns = []string{"IMPAC"}

// Reader decodes minimal DICOM headers into TagRecords.
type Reader struct {
	// KnownBadPatterns are case-insensitive base-name substrings marking
	// vendor files whose allocation failures are skipped instead of fatal.
	KnownBadPatterns []string
}

// NewReader returns a Reader with the default vendor defect patterns.
func NewReader() *Reader {
	return &Reader{KnownBadPatterns: DefaultKnownBadPatterns}
}

// ReadHeader decodes the header of one candidate file. It returns a
// *TagRecord on success, a *SkipError for per-file non-fatal outcomes, and
// a *FatalDecodeError for allocation failures on unrecognized files.
func (r *Reader) ReadHeader(path string) (*TagRecord, error) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)

	// Cheap pre-filter: only .dcm or extension-less files are candidates,
	// and DICOMDIR index files are never plan content.
	if (ext != "" && !strings.EqualFold(ext, ".dcm")) || strings.EqualFold(base, "dicomdir") {
		return nil, &SkipError{Path: path, Reason: SkipNotDICOM}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &SkipError{Path: path, Reason: SkipNotDICOM}
	}

	ds, err := parseHeader(path)
	if err != nil {
		if isAllocFailure(err) {
			if r.matchesKnownBadPattern(base) {
				return nil, &SkipError{Path: path, Reason: SkipKnownBadVendorFile}
			}
			return nil, &FatalDecodeError{Path: path, Err: err}
		}
		return nil, &SkipError{Path: path, Reason: SkipNotDICOM}
	}

	studyUID, okStudy := util.ElementString(ds, tag.StudyInstanceUID)
	sopUID, okSOP := util.ElementString(ds, tag.SOPInstanceUID)
	patientName, okName := util.ElementString(ds, tag.PatientName)
	mrn, okMRN := util.ElementString(ds, tag.PatientID)
	if !okStudy || !okSOP || !okName || !okMRN ||
		studyUID == "" || sopUID == "" {
		return nil, &SkipError{Path: path, Reason: SkipMissingRequiredTag}
	}

	rawModality, _ := util.ElementString(ds, tag.Modality)
	modality := ParseModality(strings.ToLower(strings.TrimSpace(rawModality)))

	rec := &TagRecord{
		Path:              path,
		Modality:          modality,
		StudyUID:          studyUID,
		SOPUID:            sopUID,
		MRN:               mrn,
		PatientName:       patientName,
		ModTime:           info.ModTime(),
		Size:              info.Size(),
		DoseSummationType: normalizeDoseSummationType(ds),
	}

	switch modality {
	case ModalityRTPlan:
		if uid, ok := referencedSOPUID(ds, tag.ReferencedStructureSetSequence); ok {
			rec.Ref = &Reference{Kind: RefStruct, UID: uid}
		}
	case ModalityRTDose:
		if uid, ok := referencedSOPUID(ds, tag.ReferencedRTPlanSequence); ok {
			rec.Ref = &Reference{Kind: RefPlan, UID: uid}
		}
	}

	return rec, nil
}

func (r *Reader) matchesKnownBadPattern(base string) bool {
	upper := strings.ToUpper(base)
	for _, p := range r.KnownBadPatterns {
		if p != "" && strings.Contains(upper, strings.ToUpper(p)) {
			return true
		}
	}
	return false
}

// parseHeader runs the DICOM parser with pixel data skipped, converting
// parser panics into errors so a single corrupt file cannot take down the
// worker pool.
func parseHeader(path string) (ds dicom.Dataset, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("header decode panic: %v", rec)
		}
	}()
	return dicom.ParseFile(path, nil, dicom.SkipPixelData())
}

// isAllocFailure reports whether an error looks like the runtime refusing
// an allocation, which is how the known vendor defect files manifest: a
// bogus element length makes the parser try to allocate gigabytes.
func isAllocFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{
		"out of memory",
		"cannot allocate memory",
		"makeslice: len out of range",
		"makeslice: cap out of range",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// referencedSOPUID pulls the ReferencedSOPInstanceUID out of item zero of a
// reference sequence. Additional items are ignored; plans and doses carry at
// most one relevant reference in practice.
func referencedSOPUID(ds dicom.Dataset, seq tag.Tag) (string, bool) {
	items := util.SequenceItems(ds, seq)
	if len(items) == 0 {
		return "", false
	}
	uid, ok := util.ItemString(items[0], tag.ReferencedSOPInstanceUID)
	if !ok || uid == "" {
		return "", false
	}
	return uid, true
}

func normalizeDoseSummationType(ds dicom.Dataset) string {
	raw, _ := util.ElementString(ds, tag.DoseSummationType)
	switch v := strings.ToUpper(strings.TrimSpace(raw)); v {
	case "PLAN", "BRACHY":
		return v
	default:
		return "IGNORED"
	}
}
