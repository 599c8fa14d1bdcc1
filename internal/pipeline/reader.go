package pipeline

import (
	"context"
	"fmt"
	"os"
)

// FileReader loads unit sources from the local filesystem.
type FileReader struct{}

func (FileReader) Read(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read source %s: %w", path, err)
	}
	return string(data), nil
}
