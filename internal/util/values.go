// Package util provides shared helpers for extracting and normalizing
// DICOM element values.
package util

import (
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ElementString returns the string value of a tag in the dataset.
// The second return value reports whether the element was present.
func ElementString(ds dicom.Dataset, t tag.Tag) (string, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return "", false
	}
	str := strings.Trim(elem.Value.String(), " []")
	return str, true
}

// ElementStrings returns the multi-valued string content of a tag, or nil
// if the element is absent or not string-valued.
func ElementStrings(ds dicom.Dataset, t tag.Tag) []string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return nil
	}
	vals, ok := elem.Value.GetValue().([]string)
	if !ok {
		return nil
	}
	return vals
}

// ElementInt returns the first integer value of a tag.
// The second return value reports whether a usable value was found.
func ElementInt(ds dicom.Dataset, t tag.Tag) (int, bool) {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return 0, false
	}
	vals, ok := elem.Value.GetValue().([]int)
	if !ok || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// SequenceItems returns the item element lists of a sequence tag, or nil if
// the element is absent or not a sequence.
func SequenceItems(ds dicom.Dataset, t tag.Tag) [][]*dicom.Element {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem == nil {
		return nil
	}
	items, ok := elem.Value.GetValue().([]*dicom.SequenceItemValue)
	if !ok {
		return nil
	}
	out := make([][]*dicom.Element, 0, len(items))
	for _, item := range items {
		elems, ok := item.GetValue().([]*dicom.Element)
		if !ok {
			continue
		}
		out = append(out, elems)
	}
	return out
}

// ItemString returns the string value of a tag within a sequence item.
func ItemString(item []*dicom.Element, t tag.Tag) (string, bool) {
	for _, elem := range item {
		if elem.Tag == t {
			return strings.Trim(elem.Value.String(), " []"), true
		}
	}
	return "", false
}

// ItemInt returns the first integer value of a tag within a sequence item.
func ItemInt(item []*dicom.Element, t tag.Tag) (int, bool) {
	for _, elem := range item {
		if elem.Tag == t {
			if vals, ok := elem.Value.GetValue().([]int); ok && len(vals) > 0 {
				return vals[0], true
			}
			return 0, false
		}
	}
	return 0, false
}
