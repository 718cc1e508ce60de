package mediajob

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrPlanLimit        = errors.New("active job limit reached for plan")
	ErrOperationDenied  = errors.New("operation not available on plan")
	ErrUpstream         = errors.New("media toolkit request failed")
	ErrJobNotFound      = errors.New("job not found")
	ErrMissingJobID     = errors.New("missing job_id")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ValidationError carries a human readable description of the first failing
// fields of a request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidRequest }

// TrackingError reports a job that the toolkit accepted but that could not be
// marked as processing locally.
type TrackingError struct {
	JobID         string
	ExternalJobID string
	Err           error
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("job %s accepted upstream as %s but tracking update failed: %v", e.JobID, e.ExternalJobID, e.Err)
}

func (e *TrackingError) Unwrap() error { return e.Err }

// describeValidation turns validator output into plain sentences.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describeField(fe))
	}
	return &ValidationError{Problems: problems}
}

func describeField(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	field = strings.TrimPrefix(field, "EncodingOptions.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "http_url":
		return field + " must be an absolute http(s) URL"
	case "timestamp":
		return field + " must match hh:mm:ss.ms"
	case "after_start":
		return field + " must be after start"
	case "bitrate":
		return field + " must look like 128k"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s allows at most %s entries", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "hexcolor":
		return field + " must be a hex color like #FFFFFF"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
