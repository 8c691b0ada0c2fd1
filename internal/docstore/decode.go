package docstore

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode copies document fields into out (a pointer to a struct tagged with
// `mapstructure`). Numbers are converted between int and float kinds, and
// RFC3339 strings are accepted for time fields.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("docstore: build decoder: %w", err)
	}
	if err := dec.Decode(data); err != nil {
		return fmt.Errorf("docstore: decode: %w", err)
	}
	return nil
}
