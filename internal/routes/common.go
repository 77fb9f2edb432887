package routes

import (
	"errors"
	"net/http"

	"github.com/vyrodovalexey/clusterdesk/internal/router"
	"github.com/vyrodovalexey/clusterdesk/internal/util"
)

// errorBody is the JSON shape of error responses produced by the routes.
type errorBody struct {
	Error string `json:"error"`
}

// fail builds an error response. A zero status is derived from err.
func fail(status int, err error) router.Response {
	if status == 0 {
		status = statusFor(err)
	}
	return router.Response{
		Error:      errorBody{Error: err.Error()},
		StatusCode: status,
	}
}

func statusFor(err error) int {
	if code := util.StatusCodeFor(err); code != 0 {
		return code
	}
	switch {
	case errors.Is(err, util.ErrInvalidInput), errors.Is(err, util.ErrClusterRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func clusterRequired() router.Response {
	return fail(http.StatusBadRequest, util.ErrClusterRequired)
}
