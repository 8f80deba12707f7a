package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/melih/lighthouse-autobuild/internal/core/domain"
	berrors "github.com/melih/lighthouse-autobuild/internal/errors"
)

// categoryStatus maps an error category to an HTTP status code.
func categoryStatus(cat berrors.Category) int {
	switch cat {
	case berrors.CategoryValidation, berrors.CategoryIntake:
		return fiber.StatusBadRequest
	case berrors.CategoryGeneration:
		return fiber.StatusBadGateway
	case berrors.CategoryDependency:
		return fiber.StatusServiceUnavailable
	case berrors.CategoryCancelled:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// errorStatus maps err to an HTTP status code. Retryable intake failures
// (clones) are upstream problems rather than bad input.
func errorStatus(err error) int {
	if be, ok := berrors.As(err); ok && be.Category == berrors.CategoryIntake && be.Retryable {
		return fiber.StatusBadGateway
	}
	return categoryStatus(berrors.GetCategory(err))
}

// sessionStatus maps a terminal session to the HTTP status of its response.
func sessionStatus(sess *domain.Session) int {
	switch sess.Status {
	case domain.StatusSucceeded:
		return fiber.StatusOK
	case domain.StatusExhausted:
		return fiber.StatusUnprocessableEntity
	}
	if sess.Failure == nil {
		return fiber.StatusInternalServerError
	}
	return categoryStatus(berrors.Category(sess.Failure.Category))
}

func errorBody(err error) fiber.Map {
	body := fiber.Map{
		"error":    err.Error(),
		"category": string(berrors.GetCategory(err)),
	}
	if be, ok := berrors.As(err); ok && len(be.Context) > 0 {
		body["details"] = be.Context
	}
	return body
}
