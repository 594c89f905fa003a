package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"quire/internal/backend"
	"quire/internal/services"
)

const digestLength = 128

// SelfTestResult is the outcome of a successful self-test.
type SelfTestResult struct {
	Status string `json:"status"`
	Digest string `json:"digest"`
	Pages  int    `json:"pages"`
}

// SelfTest converts a generated ODF text document to PDF through the normal
// orchestrated path and checks the result is a readable PDF.
func (o *Orchestrator) SelfTest(ctx context.Context) (SelfTestResult, error) {
	doc, err := sampleDocument()
	if err != nil {
		return SelfTestResult{}, fmt.Errorf("build sample document: %w", err)
	}
	out, err := o.Convert(ctx, Request{Data: doc, InFormat: "odt", OutFormat: "pdf"})
	if err != nil {
		return SelfTestResult{}, err
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		return SelfTestResult{}, services.Wrap(services.ErrConversionFailed, "selftest", "verify", "output is not a PDF", nil)
	}
	pages, err := backend.PageCount(out)
	if err != nil {
		return SelfTestResult{}, services.Wrap(services.ErrConversionFailed, "selftest", "verify", "output PDF is unreadable", err)
	}
	if pages < 1 {
		return SelfTestResult{}, services.Wrap(services.ErrConversionFailed, "selftest", "verify", "output PDF has no pages", nil)
	}
	digest := base64.StdEncoding.EncodeToString(out)
	if len(digest) > digestLength {
		digest = digest[:digestLength]
	}
	return SelfTestResult{Status: "ok", Digest: digest, Pages: pages}, nil
}

const (
	odtMimetype = "application/vnd.oasis.opendocument.text"

	odtManifest = `<?xml version="1.0" encoding="UTF-8"?>
<manifest:manifest xmlns:manifest="urn:oasis:names:tc:opendocument:xmlns:manifest:1.0" manifest:version="1.2">
 <manifest:file-entry manifest:full-path="/" manifest:media-type="application/vnd.oasis.opendocument.text"/>
 <manifest:file-entry manifest:full-path="content.xml" manifest:media-type="text/xml"/>
</manifest:manifest>
`

	odtContent = `<?xml version="1.0" encoding="UTF-8"?>
<office:document-content xmlns:office="urn:oasis:names:tc:opendocument:xmlns:office:1.0" xmlns:text="urn:oasis:names:tc:opendocument:xmlns:text:1.0" office:version="1.2">
 <office:body>
  <office:text>
   <text:p>quire self-test</text:p>
  </office:text>
 </office:body>
</office:document-content>
`
)

// sampleDocument builds a minimal ODF text package. The mimetype entry must be
// first and stored uncompressed.
func sampleDocument() ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	w, err := zw.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, err
	}
	if _, err := w.Write([]byte(odtMimetype)); err != nil {
		return nil, err
	}
	for _, part := range []struct{ name, body string }{
		{"META-INF/manifest.xml", odtManifest},
		{"content.xml", odtContent},
	} {
		w, err := zw.Create(part.name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write([]byte(part.body)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
