package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"schemacanvas/internal/models"
)

// RegisterValidators adds the custom binding rules used by request bodies.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("refaction", validReferentialAction)
}

// validReferentialAction accepts the referential actions in any casing, e.g. "set_null".
func validReferentialAction(fl validator.FieldLevel) bool {
	_, err := models.ParseReferentialAction(fl.Field().String())
	return err == nil
}
