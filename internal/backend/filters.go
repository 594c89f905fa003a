package backend

import "strings"

// Filter names an engine import/export filter.
type Filter struct {
	Tag       string
	Name      string
	Extension string
	Options   string
}

// DefaultFilter is used when a format tag is unknown.
var DefaultFilter = Filter{Tag: "odt", Name: "writer8", Extension: "odt"}

// PDF is the export filter used for merged output.
var PDF = Filter{Tag: "pdf", Name: "writer_pdf_Export", Extension: "pdf"}

var filters = map[string]Filter{
	"pdf": PDF,
	"odt": DefaultFilter,
	"ods": {Tag: "ods", Name: "calc8", Extension: "ods"},
	"doc": {Tag: "doc", Name: "MS Word 97", Extension: "doc"},
	"xls": {Tag: "xls", Name: "MS Excel 97", Extension: "xls"},
	"csv": {Tag: "csv", Name: "Text - txt - csv (StarCalc)", Extension: "csv", Options: "59,34,76,1"},
}

// Resolve maps a format tag to its filter. Unknown or empty tags resolve to
// DefaultFilter and report false so callers can warn.
func Resolve(tag string) (Filter, bool) {
	f, ok := filters[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return DefaultFilter, false
	}
	return f, true
}

// Known returns the supported format tags.
func Known() []string {
	return []string{"pdf", "odt", "ods", "doc", "xls", "csv"}
}
