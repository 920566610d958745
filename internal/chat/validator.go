package chat

import (
	"fmt"
	"unicode/utf8"
)

// MaxBodyChars is the maximum message length in characters.
const MaxBodyChars = 2000

// ValidateBody checks that a trimmed message body meets content
// requirements.
func ValidateBody(body string) error {
	if len(body) == 0 {
		return fmt.Errorf("message body is empty")
	}
	if !utf8.ValidString(body) {
		return fmt.Errorf("message body contains invalid UTF-8")
	}
	if utf8.RuneCountInString(body) > MaxBodyChars {
		return fmt.Errorf("message body exceeds %d character limit", MaxBodyChars)
	}
	return nil
}
