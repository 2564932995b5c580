package planner

import (
	"fmt"
	"strings"
)

// PlanConflict records actions dropped because they targeted the same
// destination, or a destination already occupied on disk.
type PlanConflict struct {
	Destination string   `json:"destination" yaml:"destination"`
	Sources     []string `json:"sources" yaml:"sources"`
	Reason      string   `json:"reason" yaml:"reason"`
}

func (c PlanConflict) Error() string {
	return fmt.Sprintf("plan conflict at %s (%s): %s", c.Destination, c.Reason, strings.Join(c.Sources, ", "))
}

const (
	conflictShared   = "shared_destination"
	conflictOccupied = "destination_exists"
)
