package handler

import (
	"github.com/google/uuid"

	"github.com/pesio-ai/be-approvals/internal/errors"
)

// requireUUID returns an INVALID_INPUT error unless value parses as a UUID.
func requireUUID(field, value string) error {
	if _, err := uuid.Parse(value); err != nil {
		return errors.InvalidInput(field, "must be a UUID")
	}
	return nil
}
