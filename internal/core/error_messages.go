package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPrimary is returned when a pipeline request has no primary table.
var ErrNoPrimary = errors.New("no primary dataset")

// UserMessage is what a client sees for a failed request: a short
// description, a suggested action and a support code.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

// userMessages are tried in order against the lowercased error text; the
// first message with a matching pattern wins.
//
// Mapping rejections (VAL010-VAL012) and warnings are reported inside a
// Result and never reach this table.
var userMessages = []struct {
	patterns []string
	msg      UserMessage
}{
	{[]string{"file too large", "request body too large"},
		UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{[]string{"invalid csv"},
		UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with a header row and consistent columns", "FILE002"}},
	{[]string{"no file provided"},
		UserMessage{"No file was selected", "Please select a CSV file to upload", "FILE004"}},
	{[]string{"empty file"},
		UserMessage{"The uploaded file is empty", "Please upload a CSV file with a header row", "FILE005"}},
	{[]string{"invalid request"},
		UserMessage{"The pipeline request could not be read", "Check the mapping, policy and filter selections", "REQ001"}},
	{[]string{"validation failed"},
		UserMessage{"One of the selections is not valid", "Null policies must be drop_row, fill_mean or fill_mode", "REQ002"}},
	{[]string{"no primary dataset"},
		UserMessage{"The primary dataset is required", "Upload the primary CSV file to start the pipeline", "REQ003"}},
	{[]string{"too many concurrent"},
		UserMessage{"The server is busy with other pipeline runs", "Wait a moment and try again", "REQ004"}},
}

var unknownError = UserMessage{"An unexpected error occurred", "Please try again or contact support", "ERR000"}

// MapError returns the user message for err, ERR000 when nothing matches and
// the zero message for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}
	text := strings.ToLower(err.Error())
	for _, m := range userMessages {
		for _, p := range m.patterns {
			if strings.Contains(text, p) {
				return m.msg
			}
		}
	}
	return unknownError
}

// FormatUserError renders MapError(err) as "Message (Code: X). Action".
func FormatUserError(err error) string {
	m := MapError(err)
	if m.Code == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", m.Message, m.Code, m.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	return err != nil && MapError(err).Code != unknownError.Code
}
