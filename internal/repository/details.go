package repository

import (
	"encoding/json"
	"fmt"

	"dealerhub-api/internal/model"
)

// fillMissing copies keys of partial into existing where existing has no value.
// It reports whether anything changed.
func fillMissing(existing, partial model.Details) (model.Details, bool) {
	if existing == nil {
		existing = model.Details{}
	}
	changed := false
	for k, v := range partial {
		if model.IsEmptyValue(v) || !existing.Missing(k) {
			continue
		}
		existing[k] = v
		changed = true
	}
	return existing, changed
}

func encodeDetails(d model.Details) ([]byte, error) {
	if d == nil {
		d = model.Details{}
	}
	return json.Marshal(d)
}

func decodeDetails(raw []byte) (model.Details, error) {
	d := model.Details{}
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	return d, nil
}

func encodeImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	return json.Marshal(images)
}

func decodeImages(raw []byte) ([]string, error) {
	images := []string{}
	if len(raw) == 0 {
		return images, nil
	}
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	return images, nil
}
