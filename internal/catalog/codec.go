package catalog

import (
	"fmt"

	"github.com/goccy/go-json"
)

// New returns a zero entity of type t.
func New(t EntityType) (Entity, error) {
	switch t {
	case TypeArtist:
		return &Artist{}, nil
	case TypeReleaseSet:
		return &ReleaseSet{}, nil
	case TypeRelease:
		return &Release{}, nil
	case TypeRecording:
		return &Recording{}, nil
	case TypeLabel:
		return &Label{}, nil
	case TypeReleaseTrack:
		return &ReleaseTrack{}, nil
	case TypeUser:
		return &User{}, nil
	case TypePlayEvent:
		return &PlayEvent{}, nil
	case TypeLibraryItem:
		return &LibraryItem{}, nil
	}
	return nil, fmt.Errorf("no entity for type %q", t)
}

// Marshal encodes e as its JSON payload.
func Marshal(e Entity) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", e.EntityType(), err)
	}
	return data, nil
}

// Unmarshal decodes a JSON payload into a new entity of type t.
func Unmarshal(t EntityType, data []byte) (Entity, error) {
	e, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t, err)
	}
	e.Base().normalizeSources()
	return e, nil
}

// Clone returns a deep copy of e by round-tripping its payload.
func Clone(e Entity) (Entity, error) {
	data, err := Marshal(e)
	if err != nil {
		return nil, err
	}
	return Unmarshal(e.EntityType(), data)
}
