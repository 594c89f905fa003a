package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoIdentifier       = errors.New("wrong or no identifier")
	ErrNoData             = errors.New("no data to be converted")
	ErrResourceLimit      = errors.New("resource limit exceeded")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrConversionTimeout  = errors.New("conversion timeout")
	ErrConversionFailed   = errors.New("conversion failed")
	ErrConfiguration      = errors.New("configuration error")
)

// markers lists the sentinel errors in classification priority order.
var markers = []struct {
	err  error
	kind string
}{
	{ErrNoIdentifier, "no_identifier"},
	{ErrNoData, "no_data"},
	{ErrResourceLimit, "resource_limit"},
	{ErrBackendUnavailable, "backend_unavailable"},
	{ErrConversionTimeout, "timeout"},
	{ErrConversionFailed, "conversion_failed"},
	{ErrConfiguration, "configuration"},
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrConversionFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Marker returns the first sentinel carried by err, or nil when err is
// unclassified.
func Marker(err error) error {
	if err == nil {
		return nil
	}
	for _, m := range markers {
		if errors.Is(err, m.err) {
			return m.err
		}
	}
	return nil
}

// Kind returns a short stable label for err suitable for journals and metrics.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range markers {
		if errors.Is(err, m.err) {
			return m.kind
		}
	}
	return "internal"
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
