package scanner

import (
	"encoding/json"
	"fmt"
)

// IdentityError records a file that could not be read during a scan. The
// file is excluded from detection and planning for the run.
type IdentityError struct {
	Path string
	Root string
	Op   string
	Err  error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IdentityError) Unwrap() error { return e.Err }

// MarshalJSON renders the error for scan reports.
func (e *IdentityError) MarshalJSON() ([]byte, error) {
	msg := ""
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return json.Marshal(struct {
		Path  string `json:"path"`
		Root  string `json:"root"`
		Op    string `json:"op"`
		Error string `json:"error"`
	}{e.Path, e.Root, e.Op, msg})
}
