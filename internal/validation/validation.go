// Package validation checks submission candidates before any network I/O.
// Rules are declared as struct tags and evaluated by go-playground/validator.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"bookintake/internal/model"
)

// mobilePattern is the 11-digit mainland mobile number format.
var mobilePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

// Candidate is the checked view of a submission. Image fields hold the resolved
// content type of the uploaded file, or "" when no file was supplied.
type Candidate struct {
	DeviceSerial       string `json:"deviceSerial" validate:"notblank"`
	PhoneNumber        string `json:"phoneNumber" validate:"notblank,cnmobile"`
	ISBN               string `json:"isbn" validate:"notblank"`
	CoverImageType     string `json:"coverImage" validate:"notblank,startswith=image/"`
	CopyrightImageType string `json:"copyrightImage" validate:"omitempty,startswith=image/"`
}

// Errors maps a field name to a user-facing message.
type Errors map[string]string

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e[f])
	}
	return strings.Join(parts, "; ")
}

// ErrUnknownField is returned by ValidateField for a name not present on Candidate.
var ErrUnknownField = errors.New("unknown field")

var messages = map[string]map[string]string{
	model.FieldDeviceSerial: {
		"notblank": "device serial is required",
	},
	model.FieldPhoneNumber: {
		"notblank": "phone number is required",
		"cnmobile": "phone number must be a valid 11-digit mobile number",
	},
	model.FieldISBN: {
		"notblank": "ISBN is required",
	},
	model.FieldCoverImage: {
		"notblank":   "cover image is required",
		"startswith": "cover image must be an image file",
	},
	model.FieldCopyrightImage: {
		"startswith": "copyright page image must be an image file",
	},
}

// Validator evaluates Candidate rules. It is safe for concurrent use.
type Validator struct {
	v    *validator.Validate
	tags map[string]string
}

// New builds a Validator with the custom rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("cnmobile", func(fl validator.FieldLevel) bool {
		return IsMobile(fl.Field().String())
	})

	tags := make(map[string]string)
	t := reflect.TypeOf(Candidate{})
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tags[strings.SplitN(f.Tag.Get("json"), ",", 2)[0]] = f.Tag.Get("validate")
	}

	return &Validator{v: v, tags: tags}
}

// IsMobile reports whether s matches the 11-digit mobile pattern.
func IsMobile(s string) bool {
	return mobilePattern.MatchString(s)
}

// Validate checks every field at once and returns Errors describing all failures, or nil.
func (val *Validator) Validate(c Candidate) error {
	err := val.v.Struct(c)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := make(Errors, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = message(fe.Field(), fe.Tag())
	}
	return out
}

// ValidateField checks a single field, for feedback while a form is being filled in.
// value is trimmed first, as submitted fields are.
func (val *Validator) ValidateField(field, value string) error {
	tag, ok := val.tags[field]
	if !ok {
		return ErrUnknownField
	}
	err := val.v.Var(strings.TrimSpace(value), tag)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err
	}
	return Errors{field: message(field, ve[0].Tag())}
}

func message(field, tag string) string {
	if m, ok := messages[field][tag]; ok {
		return m
	}
	return field + " is invalid"
}
