package afis

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/jtejido/sourceafis/templates"
)

// MarshalTemplate serializes a search template into the byte form stored
// inside template containers and on disk.
func MarshalTemplate(t *templates.SearchTemplate) ([]byte, error) {
	data, err := cbor.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal search template: %w", err)
	}
	return data, nil
}

// UnmarshalTemplate is the inverse of MarshalTemplate.
func UnmarshalTemplate(data []byte) (*templates.SearchTemplate, error) {
	var t templates.SearchTemplate
	if err := cbor.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal search template: %w", err)
	}
	return &t, nil
}
