package taxonomy

import (
	"encoding/json"
	"os"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
)

// Load reads the JSON taxonomy file keyed by category code and builds a Table.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ModelLoadFailure("reading taxonomy "+path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Table, error) {
	var raw map[string]RawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.ModelLoadFailure("parsing taxonomy", err)
	}
	return Build(raw), nil
}
