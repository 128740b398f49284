package controllers

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stitchwell/tailoring-api/models"
)

func init() {
	// request structs are allow-lists; derived fields such as remaining_amount are rejected
	binding.EnableDecoderDisallowUnknownFields = true

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("orderstatus", func(fl validator.FieldLevel) bool {
			return models.IsValidOrderStatus(fl.Field().String())
		})
		_ = v.RegisterValidation("paymenttype", func(fl validator.FieldLevel) bool {
			return models.IsValidPaymentType(fl.Field().String())
		})
		_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
			return models.IsValidCategory(fl.Field().String())
		})
	}
}
