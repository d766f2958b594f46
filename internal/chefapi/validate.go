package chefapi

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeStrict unmarshals body into dst and validates its tags.
func decodeStrict(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Wrap(ErrMalformedPayload, err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		return errors.Wrap(ErrMalformedPayload, err.Error())
	}
	return nil
}
