package util

import "strings"

// FormatPersonName converts a DICOM PN value ("DOE^JOHN^M") into a
// display form ("Doe, John M"). Empty components are dropped. Values
// without caret separators are returned title-cased.
func FormatPersonName(pn string) string {
	pn = strings.TrimSpace(pn)
	if pn == "" {
		return ""
	}

	parts := strings.Split(pn, "^")
	for i, p := range parts {
		parts[i] = titleCase(strings.TrimSpace(p))
	}

	family := parts[0]
	var given []string
	for _, p := range parts[1:] {
		if p != "" {
			given = append(given, p)
		}
	}

	if family == "" {
		return strings.Join(given, " ")
	}
	if len(given) == 0 {
		return family
	}
	return family + ", " + strings.Join(given, " ")
}

// titleCase capitalizes the first letter of each space- or hyphen-separated
// word, lowercasing the rest. DICOM PN values are conventionally upper-case.
func titleCase(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	upper := true
	for _, r := range s {
		switch {
		case r == ' ' || r == '-':
			upper = true
			b.WriteRune(r)
		case upper:
			b.WriteString(strings.ToUpper(string(r)))
			upper = false
		default:
			b.WriteString(strings.ToLower(string(r)))
		}
	}
	return b.String()
}
