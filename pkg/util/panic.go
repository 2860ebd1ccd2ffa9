package util

import (
	"errors"
	"fmt"
)

// PanicToError converts a recovered value into an error.
func PanicToError(e any) error {
	switch v := e.(type) {
	case nil:
		return nil
	case error:
		return v
	case string:
		return errors.New(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Errorf("panic code: %d", v)
	case uintptr:
		return fmt.Errorf("panic uintptr: %d", v)
	case float32, float64:
		return fmt.Errorf("panic code: %f", v)
	case fmt.Stringer:
		return errors.New(v.String())
	default:
		return fmt.Errorf("panic: %v", v)
	}
}
