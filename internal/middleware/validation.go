package middleware

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/RobertDiep/dify-slackbot/internal/model"
)

// MaxConfigSize bounds a configuration document accepted over the admin API.
const MaxConfigSize = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateEvent checks the fields every routed event must carry.
func ValidateEvent(ev model.IncomingEvent) error {
	err := validate.Struct(ev)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fmt.Errorf("event missing %s", strings.Join(fields, ", "))
}

// ValidateConfigPayload validates a configuration document before it is parsed.
func ValidateConfigPayload(body []byte) error {
	if len(body) == 0 {
		return errors.New("config cannot be empty")
	}
	if len(body) > MaxConfigSize {
		return errors.New("config exceeds maximum size")
	}
	if !utf8.Valid(body) {
		return errors.New("config must be valid UTF-8")
	}
	return nil
}
