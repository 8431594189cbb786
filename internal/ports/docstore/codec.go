package docstore

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Encode convierte un struct con tags json en el mapa de campos de un documento.
func Encode(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("docstore: encode: %w", err)
	}
	return out, nil
}

// Decode vuelca los campos del documento sobre v.
func Decode(d Document, v any) error {
	b, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("docstore: decode %s: %w", d.Path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", d.Path, err)
	}
	return nil
}

// MarshalFields serializa fields para los adapters que guardan bytes.
func MarshalFields(fields map[string]any) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	return json.Marshal(fields)
}

func UnmarshalFields(b []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
