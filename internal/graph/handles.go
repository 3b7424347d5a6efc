package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Handle sides. Outbound edges leave from the right handle, inbound edges land on the left one.
const (
	SideSource = "right"
	SideTarget = "left"
)

// SourceHandle is the outbound connection point of the column at index i.
func SourceHandle(i int) string {
	return fmt.Sprintf("col-%d-%s", i, SideSource)
}

// TargetHandle is the inbound connection point of the column at index i.
func TargetHandle(i int) string {
	return fmt.Sprintf("col-%d-%s", i, SideTarget)
}

// ParseHandle splits "col-{i}-{side}" into its index and side.
func ParseHandle(h string) (int, string, bool) {
	rest, ok := strings.CutPrefix(h, "col-")
	if !ok {
		return 0, "", false
	}
	idx, side, ok := strings.Cut(rest, "-")
	if !ok || (side != SideSource && side != SideTarget) {
		return 0, "", false
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 {
		return 0, "", false
	}
	return i, side, true
}
