// Package storage - Serialization helpers for BadgerDB.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/gadgetlabs/Gaffer/pkg/element"
)

// serializeElement converts an element to its JSON envelope for BadgerDB
// storage.
func serializeElement(el element.Element) ([]byte, error) {
	return json.Marshal(el)
}

// deserializeElement converts JSON bytes back to an element.
func deserializeElement(data []byte) (element.Element, error) {
	el, err := element.UnmarshalElement(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling element: %w", err)
	}
	return el, nil
}
