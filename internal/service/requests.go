package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"zksteam-api/internal/util"
)

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
	_ = v.RegisterValidation("safe_id", func(fl validator.FieldLevel) bool {
		return util.IsSafeIdentifier(fl.Field().String())
	})
	return v
}

// VerifyProofRequest is the body of POST /zkp/verify. Payload is opaque and
// deliberately unvalidated here: a missing payload is a verification outcome.
type VerifyProofRequest struct {
	SessionID string          `json:"sessionId" validate:"omitempty,safe_id"`
	Provider  string          `json:"provider" validate:"omitempty,max=64,safe_id"`
	Payload   json.RawMessage `json:"payload"`
}

func (r *VerifyProofRequest) Validate() error {
	return validateStruct(r)
}

type CreateProofRequestRequest struct {
	ProviderID string `json:"providerId" validate:"omitempty,max=128,safe_id"`
}

func (r *CreateProofRequestRequest) Validate() error {
	return validateStruct(r)
}

type SteamProofRequest struct {
	SteamID     string `json:"steamId" validate:"required,max=64,safe_id"`
	UserDataURL string `json:"userDataUrl" validate:"required,url"`
	CookieStr   string `json:"cookieStr" validate:"omitempty,max=8192"`
	TargetAppID string `json:"targetAppId" validate:"omitempty,numeric,max=16"`
}

func (r *SteamProofRequest) Validate() error {
	return validateStruct(r)
}

// ValidationError carries field -> failed rule pairs. It matches ErrInvalidInput.
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Details[k]))
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return &ValidationError{Details: details}
}
