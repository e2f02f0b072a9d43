package suite

import (
	"fmt"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Format names a well-known textual format with a predefined pattern.
type Format string

// Supported formats.
const (
	FormatEmail     Format = "email"
	FormatURL       Format = "url"
	FormatDate      Format = "date"
	FormatUUID      Format = "uuid"
	FormatIPv4      Format = "ipv4"
	FormatPhoneE164 Format = "phone_e164"
)

// formatPatterns maps formats to their regular expressions.
var formatPatterns = map[Format]string{
	FormatEmail:     `^[^@\s]+@[^@\s]+\.[^@\s]+$`,
	FormatURL:       `^https?://[^\s/$.?#].[^\s]*$`,
	FormatDate:      `^\d{4}-\d{2}-\d{2}$`,
	FormatUUID:      `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`,
	FormatIPv4:      `^(\d{1,3}\.){3}\d{1,3}$`,
	FormatPhoneE164: `^\+[1-9]\d{1,14}$`,
}

// Pattern returns the regular expression for the format.
func (f Format) Pattern() (string, error) {
	pattern, ok := formatPatterns[f]
	if !ok {
		return "", fmt.Errorf("%w: unknown format %q", verrors.ErrInvalidConfiguration, string(f))
	}

	return pattern, nil
}

// String returns the format name.
func (f Format) String() string {
	return string(f)
}
