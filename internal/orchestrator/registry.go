package orchestrator

import (
	"errors"
	"log"
	"sync"
)

var (
	current InstanceOrchestrator
	mu      sync.RWMutex
)

// InitOrchestrator installs o as the process-wide backend.
func InitOrchestrator(o InstanceOrchestrator) error {
	if o == nil {
		log.Println("WARNING: No orchestrator backend available")
		return errors.New("no orchestrator backend available")
	}
	mu.Lock()
	current = o
	mu.Unlock()
	log.Printf("[orchestrator] using %s backend", o.BackendName())
	return nil
}

// Get returns the installed backend, or nil.
func Get() InstanceOrchestrator {
	mu.RLock()
	defer mu.RUnlock()
	return current
}
