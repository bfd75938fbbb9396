package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// Reason explains why a Result carries no value.
type Reason string

const (
	ReasonCall       Reason = "call"       // the backend call failed
	ReasonParse      Reason = "parse"      // no JSON could be decoded
	ReasonSchema     Reason = "schema"     // JSON decoded but failed validation
	ReasonGeneric    Reason = "generic"    // answer is boilerplate
	ReasonUngrounded Reason = "ungrounded" // answer ignores the project context
)

// Result is the outcome of one structured generation: either a value or the
// reason there is none. Callers fall back on !OK instead of handling errors.
type Result[T any] struct {
	Value  T
	OK     bool
	Reason Reason
	Err    error
	Raw    string
}

// Ok wraps a successful value.
func Ok[T any](v T, raw string) Result[T] {
	return Result[T]{Value: v, OK: true, Raw: raw}
}

// Fail records why no value is available.
func Fail[T any](reason Reason, err error, raw string) Result[T] {
	return Result[T]{Reason: reason, Err: err, Raw: raw}
}

// Check runs an extra validation step on a successful result. A non-nil
// error from fn turns the result into a failure with reason.
func (r Result[T]) Check(reason Reason, fn func(T) error) Result[T] {
	if !r.OK {
		return r
	}
	if err := fn(r.Value); err != nil {
		return Fail[T](reason, err, r.Raw)
	}
	return r
}

// Error renders the failure for logs; it is empty for successful results.
func (r Result[T]) Error() string {
	if r.OK {
		return ""
	}
	if r.Err == nil {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %v", r.Reason, r.Err)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	// maxrunes counts characters, not bytes
	_ = v.RegisterValidation("maxrunes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return utf8.RuneCountInString(fl.Field().String()) <= limit
	})
	return v
}

// Validate applies struct tag validation to v.
func Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}
	return validate.Struct(v)
}

// ExtractJSON pulls the first JSON object or array out of model output,
// tolerating markdown fences and surrounding prose.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", errors.New("no JSON value in response")
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return "", errors.New("unterminated JSON value in response")
	}
	return s[start : end+1], nil
}

// Decode extracts, unmarshals and validates raw into a T.
func Decode[T any](raw string) Result[T] {
	js, err := ExtractJSON(raw)
	if err != nil {
		return Fail[T](ReasonParse, err, raw)
	}
	var v T
	if err := json.Unmarshal([]byte(js), &v); err != nil {
		return Fail[T](ReasonParse, err, raw)
	}
	if err := Validate(&v); err != nil {
		return Fail[T](ReasonSchema, err, raw)
	}
	return Ok(v, raw)
}

// Structured calls c.GenerateStructured and decodes the response.
func Structured[T any](ctx context.Context, c Client, prompt string, schema json.RawMessage, opts ...Option) Result[T] {
	raw, err := c.GenerateStructured(ctx, prompt, schema, opts...)
	if err != nil {
		return Fail[T](ReasonCall, err, "")
	}
	res := Decode[T](raw)
	if !res.OK {
		if f, ok := c.(Forgetter); ok {
			f.Forget(prompt, schema, opts...)
		}
	}
	return res
}

// StructuredWithImages is Structured with image attachments.
func StructuredWithImages[T any](ctx context.Context, c Client, prompt string, images []Image, schema json.RawMessage, opts ...Option) Result[T] {
	if len(images) == 0 {
		return Structured[T](ctx, c, prompt, schema, opts...)
	}
	raw, err := c.GenerateStructuredWithImages(ctx, prompt, images, schema, opts...)
	if err != nil {
		return Fail[T](ReasonCall, err, "")
	}
	return Decode[T](raw)
}
