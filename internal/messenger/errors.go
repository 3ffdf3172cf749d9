package messenger

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTooLong indicates the platform rejected (or would reject) a message body
// for exceeding its size ceiling. Callers shrink the content and retry.
var ErrTooLong = errors.New("message content too long")

// maxCardContentBytes is the platform ceiling for one interactive card
// payload. Checked locally before the API call so oversized bodies fail fast.
const maxCardContentBytes = 30 * 1024

func exceedsCardLimit(content string) bool {
	return len(content) > maxCardContentBytes
}

// classifySendError maps a platform rejection to ErrTooLong when the error
// text indicates a size limit, so publishers can distinguish it from
// transient failures.
func classifySendError(op string, code int, msg string) error {
	if isTooLongMessage(msg) {
		return fmt.Errorf("%w: %s: %s (code: %d)", ErrTooLong, op, msg, code)
	}
	return fmt.Errorf("feishu %s failed: %s (code: %d)", op, msg, code)
}

func isTooLongMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{"too long", "too large", "exceed", "content length", "max size"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
