package provision

import "fmt"

// AllocationError is a fatal volume or network allocation failure at the
// runtime layer.
type AllocationError struct {
	Resource string // "volume", "network", or "container"
	Name     string
	Err      error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("failed to allocate %s %s: %v", e.Resource, e.Name, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// SeedError is a fatal copy failure. The destination volume may be
// partially populated; it is not cleaned up.
type SeedError struct {
	Volume string
	Err    error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("failed to seed volume %s: %v", e.Volume, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }
