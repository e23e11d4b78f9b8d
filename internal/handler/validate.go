package handler

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/xid"

	"github.com/carlosfernandezdev/backend-recipeapp/internal/apperror"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/model"
	"github.com/carlosfernandezdev/backend-recipeapp/internal/service"
)

// validate checks request DTOs at the API boundary. Field names in errors
// are the JSON names the client sent.
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
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validateStruct reports the first failing field as a validation AppError.
func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("", "invalid request")
	}
	fe := verrs[0]
	field := fieldPath(fe)
	return apperror.ValidationFailed(field, describe(field, fe))
}

// fieldPath turns "createRecipeRequest.ingredients[0].name" into
// "ingredients[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "url", "http_url":
		return field + " must be a valid URL"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

// pathID reads a chi URL parameter and checks it is a well-formed id.
func pathID(r *http.Request, name string) (string, error) {
	raw := chi.URLParam(r, name)
	if _, err := xid.FromString(raw); err != nil {
		return "", apperror.ValidationFailed(name, name+" is not a valid id")
	}
	return raw, nil
}

// listQuery parses scope, q, page and limit from the query string.
// Limit is clamped to [1, service.MaxListLimit], even when it does not fit
// in an int. Page must be in [1, service.MaxPage].
func listQuery(r *http.Request) (service.ListQuery, error) {
	values := r.URL.Query()
	q := service.ListQuery{
		Scope: model.Scope(values.Get("scope")),
		Query: values.Get("q"),
	}
	if q.Scope != "" && !q.Scope.Valid() {
		return q, apperror.ValidationFailed("scope", "scope must be one of: personal general")
	}

	if raw := values.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return q, apperror.ValidationFailed("page", "page must be a positive integer")
		}
		if page > service.MaxPage {
			return q, apperror.ValidationFailed("page", fmt.Sprintf("page must be at most %d", service.MaxPage))
		}
		q.Page = page
	}
	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		switch {
		case errors.Is(err, strconv.ErrRange) && strings.HasPrefix(raw, "-"):
			limit = 1
		case errors.Is(err, strconv.ErrRange):
			limit = service.MaxListLimit
		case err != nil:
			return q, apperror.ValidationFailed("limit", "limit must be an integer")
		case limit < 1:
			limit = 1
		}
		q.Limit = limit
	}
	return q, nil
}
