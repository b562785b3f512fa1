package detector

// Detector is a strategy that determines whether the holder of a durable
// resource is still alive. Implementations may check a PID file, a PID
// number, or scan process invocations for a path fragment.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the holder is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}
