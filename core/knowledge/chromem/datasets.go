package chromem

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadImageSet reads a JSON array of image documents from path. An empty
// path yields an empty set.
func LoadImageSet(path string) ([]ImageDocument, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image set file: %w", err)
	}

	var images []ImageDocument
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, fmt.Errorf("failed to parse image set file: %w", err)
	}
	return images, nil
}
