// Package checkpoint persists coarse per-file transfer progress as a JSON
// sidecar next to the destination file. The sidecar is a resume hint, not
// a correctness requirement: every operation here is best-effort.
package checkpoint

import (
	"encoding/json"
	"os"
)

// Suffix is appended to a destination path to form its sidecar path.
const Suffix = ".resume"

// State records the highest contiguous byte offset acknowledged complete
// for a destination file.
type State struct {
	Position int64 `json:"position"`
}

// SidecarPath returns the sidecar path for a destination file.
func SidecarPath(dest string) string {
	return dest + Suffix
}

// Load reads the sidecar for dest. A missing, unreadable, or corrupt
// sidecar yields a zero State: corruption means "no prior progress",
// never a fatal error.
func Load(dest string) State {
	data, err := os.ReadFile(SidecarPath(dest))
	if err != nil {
		return State{}
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil || st.Position < 0 {
		return State{}
	}
	return st
}

// Save writes the sidecar for dest. The returned error is advisory;
// callers log it and carry on.
func Save(dest string, position int64) error {
	data, err := json.Marshal(State{Position: position})
	if err != nil {
		return err
	}
	return os.WriteFile(SidecarPath(dest), data, 0o644)
}

// Clear removes the sidecar for dest. Missing sidecars are not an error.
func Clear(dest string) error {
	err := os.Remove(SidecarPath(dest))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
