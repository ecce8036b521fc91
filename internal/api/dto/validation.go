package dto

import (
	"errors"
	"strconv"

	"github.com/cuongbtq/jobscheduler/internal/jobs"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterJobValidation adds the job specific rules to validate
func RegisterJobValidation(validate *validator.Validate) error {
	err := validate.RegisterValidation("periodunit", func(fl validator.FieldLevel) bool {
		return jobs.PeriodUnit(fl.Field().String()).IsValid()
	})
	if err != nil {
		return err
	}

	validate.RegisterStructValidation(validatePeriod, PeriodDTO{})
	return nil
}

// validatePeriod bounds the value by the maximum of its unit
func validatePeriod(sl validator.StructLevel) {
	p := sl.Current().Interface().(PeriodDTO)
	limit, ok := jobs.MaxPeriodValues[jobs.PeriodUnit(p.Type)]
	if ok && p.Value > limit {
		sl.ReportError(p.Value, "Value", "value", "periodmax", strconv.Itoa(limit))
	}
}

// RegisterValidators installs the job rules in the gin binding validator
func RegisterValidators() error {
	validate, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin binding validator is not a validator.Validate")
	}
	return RegisterJobValidation(validate)
}
