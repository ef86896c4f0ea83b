package helpers

import (
	"github.com/labstack/echo/v4"
	"github.com/opsecid/webvh-server/webvh"
)

func InputError(e echo.Context, custom *string) error {
	msg := "InvalidRequest"
	if custom != nil {
		msg = *custom
	}
	return genericError(e, 400, msg)
}

func Unauthorized(e echo.Context, custom *string) error {
	msg := "Unauthorized"
	if custom != nil {
		msg = *custom
	}
	return genericError(e, 401, msg)
}

func NotFound(e echo.Context) error {
	return genericError(e, 404, "Not Found")
}

func ServerError(e echo.Context, suffix *string) error {
	msg := "Internal server error"
	if suffix != nil {
		msg += ". " + *suffix
	}
	return genericError(e, 500, msg)
}

// RejectionError renders a core rejection with its kind and reason, mapped
// onto a transport status without the core knowing about HTTP.
func RejectionError(e echo.Context, rej *webvh.Rejection) error {
	code := 400
	switch rej.Kind {
	case webvh.KindAuthorizationFailure, webvh.KindUnknownWitness:
		code = 401
	case webvh.KindNoStateChange:
		code = 409
	case webvh.KindIdentifierDeactivated:
		code = 410
	}
	return e.JSON(code, map[string]string{
		"error":  string(rej.Kind),
		"reason": rej.Reason,
	})
}

func genericError(e echo.Context, code int, msg string) error {
	return e.JSON(code, map[string]string{
		"error": msg,
	})
}
