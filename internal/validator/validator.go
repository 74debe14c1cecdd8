package validator

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	validate *validator.Validate
)

// tickerPattern matches OTC-registered ticker symbols
var tickerPattern = regexp.MustCompile(`^[A-Za-z]{3,5}$`)

// Validator represents a validator instance
type Validator struct {
	validate *validator.Validate
}

// New creates a new validator instance
func New() *Validator {
	once.Do(func() {
		validate = validator.New()

		_ = validate.RegisterValidation("ticker", validateTicker)

		// Use mapstructure/json tag names in error messages
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"mapstructure", "json"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return fld.Name
		})
	})

	return &Validator{validate: validate}
}

// Struct validates a struct
func (v *Validator) Struct(s any) error {
	if err := v.validate.Struct(s); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return fmt.Errorf("invalid validation error: %w", err)
		}

		var errMsgs []string
		for _, fieldErr := range err.(validator.ValidationErrors) {
			errMsgs = append(errMsgs, fmt.Sprintf("%s failed on %s", fieldErr.Field(), fieldErr.Tag()))
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errMsgs, "; "))
	}
	return nil
}

// Ticker validates a ticker symbol
func (v *Validator) Ticker(symbol string) error {
	if !tickerPattern.MatchString(symbol) {
		return fmt.Errorf("invalid ticker %q: expected 3-5 letters", symbol)
	}
	return nil
}

func validateTicker(fl validator.FieldLevel) bool {
	return tickerPattern.MatchString(fl.Field().String())
}
