package orchestrator

// SetForTest installs o without logging.
func SetForTest(o InstanceOrchestrator) {
	mu.Lock()
	defer mu.Unlock()
	current = o
}

// ResetForTest clears the installed backend.
func ResetForTest() {
	mu.Lock()
	defer mu.Unlock()
	current = nil
}
