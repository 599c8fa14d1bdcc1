package pipeline

import (
	"fmt"
	"os"
	"strings"

	"cosmicdocflow/internal/checkpoint"
)

// MergeParts concatenates the fan-out fragments of a unit in ordinal order
// into one table. The header and separator rows are kept from the first
// fragment only; every later fragment contributes its data rows.
func MergeParts(store *checkpoint.Store, owner, unit string, count int) ([]byte, error) {
	var out []string
	for i := 0; i < count; i++ {
		data, err := os.ReadFile(store.PartPath(owner, unit, i))
		if err != nil {
			return nil, fmt.Errorf("read part %d of %s/%s: %w", i, owner, unit, err)
		}
		lines := tableLines(string(data))
		if i == 0 {
			out = append(out, lines...)
			continue
		}
		if len(lines) > 2 {
			out = append(out, lines[2:]...)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("merge %s/%s: no content in %d parts", owner, unit, count)
	}
	return []byte(strings.Join(out, "\n") + "\n"), nil
}

// RemoveParts deletes the fragment directory once the merged artifact is
// committed.
func RemoveParts(store *checkpoint.Store, owner, unit string) error {
	return os.RemoveAll(store.PartDir(owner, unit))
}

func tableLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(s), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
