// README: Order payload validation; every violation is collected before returning.
package order

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"livraison/internal/types"
)

type CustomerInput struct {
	Email     string `json:"email" validate:"required,basic_email"`
	FirstName string `json:"first_name" validate:"required,min=2"`
	LastName  string `json:"last_name" validate:"required,min=2"`
	Phone     string `json:"phone" validate:"required,min=8"`
}

type DeliveryInput struct {
	Address  string       `json:"address" validate:"required,min=5"`
	Option   string       `json:"option" validate:"required"`
	District string       `json:"district"`
	Notes    string       `json:"notes"`
	Date     string       `json:"date"`
	Time     string       `json:"time"`
	Location *types.Point `json:"location"`
}

type PaymentInput struct {
	Method  string         `json:"method" validate:"required"`
	Details map[string]any `json:"details"`
}

type ItemInput struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gt=0"`
	Quantity int     `json:"quantity" validate:"gt=0"`
}

type TotalsInput struct {
	Total        float64 `json:"total" validate:"gt=0"`
	Subtotal     float64 `json:"subtotal" validate:"gte=0"`
	DeliveryCost float64 `json:"delivery_cost" validate:"gte=0"`
	Discount     float64 `json:"discount" validate:"gte=0"`
}

type CreateCommand struct {
	Customer CustomerInput `json:"customer"`
	Delivery DeliveryInput `json:"delivery"`
	Payment  PaymentInput  `json:"payment"`
	Items    []ItemInput   `json:"items" validate:"required,min=1,dive"`
	Totals   TotalsInput   `json:"totals"`
}

// ValidationError lists every problem found in a payload.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid order: " + strings.Join(e.Problems, "; ")
}

var basicEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("basic_email", func(fl validator.FieldLevel) bool {
		return basicEmail.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	return v
}

// Validate checks cmd and returns a *ValidationError holding all violations.
func Validate(cmd CreateCommand) error {
	var problems []string
	if err := validate.Struct(cmd); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}
	t := cmd.Totals
	if t.Total > 0 && !types.AmountsEqual(t.Total, t.Subtotal-t.Discount+t.DeliveryCost) {
		problems = append(problems, fmt.Sprintf("totals.total: %.2f does not equal subtotal - discount + delivery_cost (%.2f)",
			t.Total, t.Subtotal-t.Discount+t.DeliveryCost))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Slice {
			return field + ": at least one item is required"
		}
		return field + ": is required"
	case "basic_email":
		return field + ": must look like local@domain"
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + ": at least one item is required"
		}
		return fmt.Sprintf("%s: must be at least %s characters", field, fe.Param())
	case "gt":
		return field + ": must be greater than " + fe.Param()
	case "gte":
		return field + ": must not be negative"
	}
	return fmt.Sprintf("%s: failed %s", field, fe.Tag())
}
