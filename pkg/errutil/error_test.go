package errutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusOfWrapped(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("withdraw: %w", UpstreamFailure("provider batch creation failed", cause))

	require.Equal(t, StatusBadGateway, StatusOf(err))
	require.True(t, Is(err, StatusBadGateway))
	require.ErrorIs(t, err, cause)
	require.Equal(t, http.StatusBadGateway, StatusOf(err).HTTPStatus())
}

func TestStatusOfForeignError(t *testing.T) {
	require.Equal(t, StatusInternal, StatusOf(errors.New("boom")))
	require.Equal(t, CoreStatus(""), StatusOf(nil))
}

func TestTaxonomyStatuses(t *testing.T) {
	cases := map[CoreStatus]error{
		StatusNotFound:            NotFound("winning not found", nil),
		StatusBadRequest:          InvalidRequest("nothing to update", nil),
		StatusUnprocessableEntity: InvalidState("payment is cancelled", nil),
		StatusConflict:            Conflict("stale version", nil),
		StatusUnauthorized:        Unauthorized("bad signature", nil),
	}
	for status, err := range cases {
		var be BaseError
		require.True(t, errors.As(err, &be))
		require.Equal(t, status, be.Status())
	}
}

func TestErrorMessage(t *testing.T) {
	err := InvalidState("processing too recent", nil)
	require.Equal(t, "[unprocessable_entity] processing too recent", err.Error())
}
