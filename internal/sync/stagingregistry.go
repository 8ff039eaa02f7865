package sync

import (
	"os"
	gosync "sync"
)

// stagingRegistry tracks in-progress staging files for defense-in-depth
// cleanup on shutdown.
var globalStagingRegistry = &stagingRegistry{}

type stagingRegistry struct {
	mu    gosync.Mutex
	paths map[string]struct{}
}

// registerStaging adds a staging file path to the global registry.
func registerStaging(path string) {
	globalStagingRegistry.mu.Lock()
	defer globalStagingRegistry.mu.Unlock()
	if globalStagingRegistry.paths == nil {
		globalStagingRegistry.paths = make(map[string]struct{})
	}
	globalStagingRegistry.paths[path] = struct{}{}
}

// deregisterStaging removes a staging file path from the global registry.
func deregisterStaging(path string) {
	globalStagingRegistry.mu.Lock()
	defer globalStagingRegistry.mu.Unlock()
	delete(globalStagingRegistry.paths, path)
}

// CleanupStagingFiles removes all registered staging files. Called on
// interrupt so a killed run does not litter the destination tree.
func CleanupStagingFiles() {
	globalStagingRegistry.mu.Lock()
	paths := make([]string, 0, len(globalStagingRegistry.paths))
	for p := range globalStagingRegistry.paths {
		paths = append(paths, p)
	}
	globalStagingRegistry.paths = nil
	globalStagingRegistry.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}
