// Package ops implements the annotation store operations shared by the HTTP
// API, the MCP tools and the CLI. Annotations are never physically deleted.
package ops

import (
	"crypto/rand"
	stderrors "errors"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/margin/internal/annotation"
	"github.com/hpungsan/margin/internal/errors"
)

// MaxIDLength bounds client-supplied annotation ids.
const MaxIDLength = 64

// now is the clock for created_at/updated_at/deleted_at, in Unix milliseconds.
// Tests replace it.
var now = func() int64 { return time.Now().UnixMilli() }

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	_ = validate.RegisterValidation("color", func(fl validator.FieldLevel) bool {
		return annotation.Color(fl.Field().String()).Valid()
	})
	_ = validate.RegisterValidation("annotationtype", func(fl validator.FieldLevel) bool {
		return annotation.Kind(fl.Field().String()).Valid()
	})
}

// fieldErrors runs struct validation and returns the failed rule per JSON
// field, or nil when v is valid.
func fieldErrors(v any) (map[string]string, error) {
	err := validate.Struct(v)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if !stderrors.As(err, &verrs) {
		return nil, errors.NewInternal(err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields, nil
}

// checkNote enforces the configured note length in characters.
func checkNote(note string, maxChars int, fields map[string]string) map[string]string {
	if maxChars > 0 && utf8.RuneCountInString(note) > maxChars {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["note"] = "max"
	}
	return fields
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Now(), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func cleanID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errors.NewValidation("id is required", map[string]string{"id": "required"})
	}
	return id, nil
}
