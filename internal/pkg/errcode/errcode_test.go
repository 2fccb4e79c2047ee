package errcode

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

func TestHTTPStatus(t *testing.T) {
	require.Equal(t, http.StatusUnauthorized, HTTPStatus(appErr.KindAuthentication))
	require.Equal(t, http.StatusForbidden, HTTPStatus(appErr.KindAuthorization))
	require.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(appErr.KindExtraction))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(appErr.Kind("other")))
	require.NotEqual(t, FromKind(appErr.KindAuthentication), FromKind(appErr.KindAuthorization))
}
