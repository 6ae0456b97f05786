package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	cases := map[ErrorType]int{
		ErrAlreadyExists:               http.StatusConflict,
		ErrWalletNotFound:              http.StatusNotFound,
		ErrConnectorInit:               http.StatusBadRequest,
		ErrBalanceFetchTimeout:         http.StatusGatewayTimeout,
		ErrContainerCreate:             http.StatusInternalServerError,
		ErrContainerRuntimeUnavailable: http.StatusServiceUnavailable,
		ErrBrokerConnection:            http.StatusBadGateway,
		ErrInvalidPerformanceReport:    http.StatusUnprocessableEntity,
		ErrReadOnly:                    http.StatusForbidden,
		ErrUnauthorized:                http.StatusUnauthorized,
	}
	for typ, status := range cases {
		assert.Equal(t, status, New(typ, "x", nil).HTTPStatus, typ)
	}
}

func TestWrapAndIsType(t *testing.T) {
	base := Newf(ErrNotFound, "account %s not found", "acct1")
	wrapped := fmt.Errorf("delete: %w", base)

	assert.True(t, IsType(wrapped, ErrNotFound))
	assert.False(t, IsType(wrapped, ErrInternal))
	assert.Same(t, base, Wrap(wrapped))
	assert.True(t, errors.Is(wrapped, New(ErrNotFound, "", nil)))

	plain := Wrap(errors.New("disk full"))
	assert.Equal(t, ErrInternal, plain.Type)
	assert.Nil(t, Wrap(nil))
}

func TestJSONShape(t *testing.T) {
	data, err := json.Marshal(New(ErrWalletNotFound, "no wallet", errors.New("hidden")))
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "WALLET_NOT_FOUND", body["code"])
	assert.Equal(t, "no wallet", body["message"])
	assert.NotEmpty(t, body["suggestion"])
	assert.NotContains(t, string(data), "hidden")
}
