package validator

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var (
	adTypes          = []string{"BANNER", "CAROUSEL", "POPUP", "VIDEO", "NATIVE", "SPONSORED_PRODUCT"}
	adStatuses       = []string{"DRAFT", "SCHEDULED", "ACTIVE", "PAUSED", "ENDED"}
	targetTypes      = []string{"ALL_USERS", "NEW_USERS", "RETURNING_USERS", "INTEREST_BASED", "LOCATION_BASED", "SPECIFIC_USERS"}
	interactionTypes = []string{"IMPRESSION", "CLICK", "CONVERSION"}
)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func oneOf(values []string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, allowed := range values {
			if v == allowed {
				return true
			}
		}
		return false
	}
}

func registerCustomValidations() {
	validate.RegisterValidation("ad_type", oneOf(adTypes))
	validate.RegisterValidation("ad_status", oneOf(adStatuses))
	validate.RegisterValidation("target_type", oneOf(targetTypes))
	validate.RegisterValidation("interaction_type", oneOf(interactionTypes))

	// HH:MM, 24h clock
	validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, ok := ParseClock(fl.Field().String())
		return ok
	})

	// "0" (Sunday) .. "6" (Saturday)
	validate.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Field().String())
		return err == nil && n >= 0 && n <= 6
	})
}

// ParseClock converts "HH:MM" into minutes after midnight
func ParseClock(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range verrs {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gt":
			errors[field] = "Value must be greater than " + err.Param()
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "url":
			errors[field] = "Invalid URL format"
		case "uuid":
			errors[field] = "Invalid UUID"
		case "ad_type":
			errors[field] = "Invalid ad type. Must be one of: " + strings.Join(adTypes, ", ")
		case "ad_status":
			errors[field] = "Invalid status. Must be one of: " + strings.Join(adStatuses, ", ")
		case "target_type":
			errors[field] = "Invalid target type. Must be one of: " + strings.Join(targetTypes, ", ")
		case "interaction_type":
			errors[field] = "Invalid interaction type. Must be one of: " + strings.Join(interactionTypes, ", ")
		case "hhmm":
			errors[field] = "Invalid time of day, expected HH:MM"
		case "weekday":
			errors[field] = "Invalid day of week, expected 0 (Sunday) to 6 (Saturday)"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
