package convert

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"

	"quire/internal/services"
)

// countParts returns the number of entries in a zip container. Non-zip input
// reports ok=false.
func countParts(data []byte) (int, bool) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, false
	}
	return len(r.File), true
}

// checkParts rejects zip containers with more than limit entries.
func checkParts(data []byte, limit int) error {
	parts, isZip := countParts(data)
	if !isZip || parts <= limit {
		return nil
	}
	return services.Wrap(services.ErrResourceLimit, "convert", "inspect",
		fmt.Sprintf("document has %d parts, limit is %d", parts, limit), nil)
}

// decodeSpooled turns spooled base64 text back into document bytes.
func decodeSpooled(raw []byte) ([]byte, error) {
	text := strings.Join(strings.Fields(string(raw)), "")
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, services.Wrap(services.ErrNoData, "convert", "decode", "spooled content is not valid base64", err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrNoData, "convert", "decode", "spooled content is empty", nil)
	}
	return data, nil
}
