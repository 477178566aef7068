package provider

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies a provider failure for diagnostics.
type Category string

const (
	CategoryNone           Category = ""
	CategoryAuthentication Category = "authentication"
	CategoryBadParameters  Category = "bad_parameters"
	CategoryWrongEndpoint  Category = "wrong_endpoint"
	CategoryNotFound       Category = "not_found"
	CategoryUnavailable    Category = "provider_unavailable"
	CategoryParse          Category = "parse_error"
	CategoryGeneric        Category = "generic"
)

// CodeOK is the provider's success code.
const CodeOK = 200

// Sentinel errors, one per category.
var (
	ErrAuthentication = errors.New("provider authentication failure")
	ErrBadParameters  = errors.New("provider rejected parameters")
	ErrWrongEndpoint  = errors.New("vehicle not registered in this endpoint")
	ErrNotFound       = errors.New("vehicle not found")
	ErrUnavailable    = errors.New("provider unavailable")
	ErrParse          = errors.New("malformed provider response")
	ErrGeneric        = errors.New("provider error")
)

var categorySentinels = map[Category]error{
	CategoryAuthentication: ErrAuthentication,
	CategoryBadParameters:  ErrBadParameters,
	CategoryWrongEndpoint:  ErrWrongEndpoint,
	CategoryNotFound:       ErrNotFound,
	CategoryUnavailable:    ErrUnavailable,
	CategoryParse:          ErrParse,
	CategoryGeneric:        ErrGeneric,
}

// codeCategories is the fixed provider code table. 612 is refined by
// Classify using the error text.
var codeCategories = map[int]Category{
	601: CategoryAuthentication,
	606: CategoryBadParameters,
	607: CategoryBadParameters,
	612: CategoryNotFound,
	615: CategoryUnavailable,
	618: CategoryUnavailable,
}

// notRegisteredMarkers are the phrases that, together with "CHASSI", mean
// the vehicle exists but not in the queried registry.
var notRegisteredMarkers = []string{"NOT REGISTERED", "NÃO CADASTRADO", "NAO CADASTRADO"}

// Classify maps a provider response code and its error texts to a Category.
func Classify(code int, errs []string) Category {
	if code == CodeOK {
		return CategoryNone
	}
	cat, ok := codeCategories[code]
	if !ok {
		return CategoryGeneric
	}
	if code == 612 && wrongEndpoint(errs) {
		return CategoryWrongEndpoint
	}
	return cat
}

func wrongEndpoint(errs []string) bool {
	text := strings.ToUpper(strings.Join(errs, " "))
	if !strings.Contains(text, "CHASSI") {
		return false
	}
	for _, m := range notRegisteredMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// LookupError is a classified provider failure.
type LookupError struct {
	Code     int
	Category Category
	Message  string
	Errors   []string
}

func (e *LookupError) Error() string {
	msg := e.Message
	if msg == "" && len(e.Errors) > 0 {
		msg = strings.Join(e.Errors, "; ")
	}
	if msg == "" {
		msg = categorySentinels[e.Category].Error()
	}
	return fmt.Sprintf("provider: code %d (%s): %s", e.Code, e.Category, msg)
}

func (e *LookupError) Unwrap() error {
	if s, ok := categorySentinels[e.Category]; ok {
		return s
	}
	return ErrGeneric
}

// NewLookupError classifies code and errs into a LookupError.
func NewLookupError(code int, message string, errs []string) *LookupError {
	return &LookupError{Code: code, Category: Classify(code, errs), Message: message, Errors: errs}
}

// CategoryOf extracts the category of err, or CategoryNone when err is not
// a LookupError.
func CategoryOf(err error) Category {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Category
	}
	return CategoryNone
}

// AsLookupError returns err as a *LookupError when it is one.
func AsLookupError(err error) (*LookupError, bool) {
	var le *LookupError
	ok := errors.As(err, &le)
	return le, ok
}

// Describe returns a short human-readable description of c.
func Describe(c Category) string {
	if c == CategoryNone {
		return "ok"
	}
	if s, ok := categorySentinels[c]; ok {
		return s.Error()
	}
	return ErrGeneric.Error()
}
