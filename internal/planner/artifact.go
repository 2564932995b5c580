package planner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"audioclean/internal/fileutil"
	"audioclean/internal/identitycache"
	"audioclean/internal/services"
)

// Format selects the plan document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts json, yaml or yml. Empty means JSON.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", services.Wrap(services.ErrValidation, "plan", "format", fmt.Sprintf("unsupported plan format %q", raw), nil)
}

// Encode serializes a plan.
func Encode(plan *Plan, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return nil, fmt.Errorf("encode plan yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode plan yaml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode plan json: %w", err)
		}
		return append(data, '\n'), nil
	}
}

// Decode parses a plan document in either encoding.
func Decode(data []byte) (*Plan, error) {
	var plan Plan
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, services.Wrap(services.ErrValidation, "plan", "decode", "plan document is empty", nil)
	}
	var err error
	if trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &plan)
	} else {
		err = yaml.Unmarshal(trimmed, &plan)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "plan", "decode", "plan document is malformed", err)
	}
	if plan.Version != ArtifactVersion {
		return nil, services.Wrap(services.ErrValidation, "plan", "decode",
			fmt.Sprintf("plan version %d is not supported (want %d)", plan.Version, ArtifactVersion), nil)
	}
	if plan.Summary.ByKind == nil {
		plan.Summary.ByKind = map[Kind]int{}
	}
	for i, a := range plan.Actions {
		if a.Ordinal != i+1 {
			return nil, services.Wrap(services.ErrValidation, "plan", "decode",
				fmt.Sprintf("action %d has ordinal %d", i+1, a.Ordinal), nil)
		}
	}
	return &plan, nil
}

// WriteFile atomically writes the plan to path.
func WriteFile(path string, plan *Plan, format Format) error {
	data, err := Encode(plan, format)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "plan", "write artifact", path, err)
	}
	return nil
}

// ReadFile loads a plan artifact from path.
func ReadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrNotFound, "plan", "read artifact", path, err)
		}
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Decode(data)
}

// LibraryFingerprint digests the identity of every usable record. Two scans
// of an unchanged library yield the same value.
func LibraryFingerprint(records []identitycache.FileRecord) string {
	lines := make([]string, 0, len(records))
	for _, rec := range records {
		if !rec.Usable() {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s\x00%d\x00%s\n", rec.Path, rec.Size, rec.ContentHash))
	}
	sort.Strings(lines)
	h := blake3.New()
	for _, line := range lines {
		_, _ = h.Write([]byte(line))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func planID(plan *Plan) string {
	settings, _ := json.Marshal(plan.Settings)
	actions, _ := json.Marshal(plan.Actions)
	h := blake3.New()
	_, _ = h.Write([]byte(plan.LibraryFingerprint))
	_, _ = h.Write(settings)
	_, _ = h.Write(actions)
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
