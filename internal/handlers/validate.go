package handlers

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// reservedShortCodes are first path segments the router serves itself.
var reservedShortCodes = map[string]bool{
	"api":     true,
	"healthz": true,
	"metrics": true,
	"oauth2":  true,
}

var blankMessages = map[string]string{
	"short_code": "Short code cannot be blank",
	"long_url":   "Long URL cannot be blank",
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() == reflect.Pointer {
				if f.IsNil() {
					return true
				}
				f = f.Elem()
			}
			return strings.TrimSpace(f.String()) != ""
		})
		_ = validate.RegisterValidation("notreserved", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() == reflect.Pointer {
				if f.IsNil() {
					return true
				}
				f = f.Elem()
			}
			return !reservedShortCodes[f.String()]
		})
	})
	return validate
}

// validateRequest returns the client-facing message for the first failed rule, or "" if s is valid.
func validateRequest(s any) string {
	err := getValidator().Struct(s)
	if err == nil {
		return ""
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "Invalid request body"
	}

	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return "Missing property " + fe.Field()
	case "notblank":
		if msg, ok := blankMessages[fe.Field()]; ok {
			return msg
		}
		return fe.Field() + " cannot be blank"
	case "notreserved":
		return "Short code is reserved"
	default:
		return "Invalid value for " + fe.Field()
	}
}

// snowflake is a Discord id sent either as a JSON string or a bare number.
type snowflake string

func (s *snowflake) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = snowflake(str)
		return nil
	}
	*s = snowflake(b)
	return nil
}

func (s snowflake) Int64() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(string(s)), 10, 64)
}
