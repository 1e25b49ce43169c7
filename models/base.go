package models

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Reference links a ledger transaction or stock movement back to the
// originating event record.
type Reference struct {
	Type string `json:"type"`
	Id   int    `json:"id"`
	Note string `json:"note"`
}
