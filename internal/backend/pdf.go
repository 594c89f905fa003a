package backend

import (
	"bytes"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disablePDFConfigDir = sync.OnceFunc(api.DisableConfigDir)

// PDFConfiguration returns a pdfcpu configuration that never touches the
// user's config directory.
func PDFConfiguration() *model.Configuration {
	disablePDFConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// MergePDF concatenates PDF documents in order.
func MergePDF(parts [][]byte) ([]byte, error) {
	readers := make([]io.ReadSeeker, 0, len(parts))
	for _, p := range parts {
		readers = append(readers, bytes.NewReader(p))
	}
	var merged bytes.Buffer
	if err := api.MergeRaw(readers, &merged, false, PDFConfiguration()); err != nil {
		return nil, err
	}
	return merged.Bytes(), nil
}

// PageCount returns the number of pages in a PDF document.
func PageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), PDFConfiguration())
}
