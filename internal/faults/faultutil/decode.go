// Package faultutil provides the shared params-decoding step every fault
// module's Validate uses: map[string]any -> typed struct -> struct-tag
// bounds validation, matching spec.md §4.2's per-kind bound tables.
package faultutil

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode maps rawParams (as decoded from an HTTP query string or JSON
// body) onto dst, applying mapstructure string->type coercion, then runs
// struct-tag validation against dst.
func Decode(rawParams map[string]any, dst any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           dst,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(rawParams); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validate params: %w", err)
	}
	return nil
}
