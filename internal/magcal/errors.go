package magcal

import "fmt"

// InsufficientSamplesError reports that a calibration stage was
// triggered before enough samples were buffered. The caller is expected
// to keep collecting and retry; nothing is retried internally.
type InsufficientSamplesError struct {
	Stage    string
	Actual   int
	Required int
}

func (e *InsufficientSamplesError) Error() string {
	return fmt.Sprintf("%s calibration needs %d samples, have %d", e.Stage, e.Required, e.Actual)
}
