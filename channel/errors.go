package channel

import (
	"errors"
	"fmt"
)

// RejectedError is an explicit device level refusal, such as an
// unsupported attribute or malformed command status. It is never retried:
// repeating a request the device actively rejects cannot succeed and only
// burns the caller's time budget.
type RejectedError struct {
	Attribute uint16
	Status    uint8
}

func (e RejectedError) Error() string {
	return fmt.Sprintf("device rejected attribute 0x%04x with status 0x%02x", e.Attribute, e.Status)
}

// IsRejected reports whether err stems from a device level rejection
// rather than a transport failure.
func IsRejected(err error) bool {
	var re RejectedError
	return errors.As(err, &re)
}
