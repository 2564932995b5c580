package fingerprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"audioclean/internal/services"
)

// Result is the decoded fpcalc output for one file.
type Result struct {
	Duration    float64  `json:"duration"`
	Fingerprint []uint32 `json:"fingerprint"`
}

// Fpcalc runs the chromaprint command-line tool.
type Fpcalc struct {
	Binary string
	// Length limits analysis to the first N seconds; 0 uses fpcalc's default.
	Length int
}

// NewFpcalc returns an Fpcalc for binary, defaulting to "fpcalc".
func NewFpcalc(binary string) *Fpcalc {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "fpcalc"
	}
	return &Fpcalc{Binary: binary}
}

// Fingerprint executes fpcalc against path and decodes the raw fingerprint.
func (f *Fpcalc) Fingerprint(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("fpcalc: empty path")
	}
	args := []string{"-json", "-raw"}
	if f.Length > 0 {
		args = append(args, "-length", fmt.Sprint(f.Length))
	}
	args = append(args, path)

	cmd := exec.CommandContext(ctx, f.Binary, args...)
	output, err := cmd.Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return Result{}, services.Wrap(services.ErrExternalTool, "scan", "fpcalc", detail, err)
	}
	return Parse(output)
}

// Parse decodes `fpcalc -json -raw` output.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("fpcalc parse: %w", err)
	}
	if len(result.Fingerprint) == 0 {
		return Result{}, errors.New("fpcalc did not return a fingerprint")
	}
	return result, nil
}
