package logger

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so provisioning runs can be correlated when the
// output of many short-lived invocations is aggregated.
const (
	// Tenant identification
	KeyTenant  = "tenant"    // Container name of the tenant being provisioned
	KeyUserTag = "user_tag"  // Free-text label supplied by the operator
	KeyHash    = "user_hash" // Opaque tenant identifier

	// Resources
	KeyVolume     = "volume"       // Volume name
	KeyNetwork    = "network"      // Network name
	KeyImage      = "image"        // Image reference
	KeyContainer  = "container_id" // Container runtime ID
	KeyMountpoint = "mountpoint"   // Host path backing a volume

	// Provisioning flow
	KeyStep     = "step"     // Orchestrator step: allocate, seed, register, build, start, verify, label
	KeyState    = "state"    // Lifecycle state: absent, building, starting, running, failed
	KeyPolicy   = "policy"   // Seeding policy: overwrite, if-empty
	KeyAttempt  = "attempt"  // Retry attempt counter (lock acquisition, verification)
	KeyDuration = "duration" // Elapsed time of an operation

	// Files
	KeyPath   = "path"   // Filesystem path
	KeySource = "source" // Seed source directory
	KeyCount  = "count"  // Generic count (files copied, records, ...)

	// Errors
	KeyError = "error" // Error value
)
