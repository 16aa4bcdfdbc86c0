package httperrors_test

import (
	"net/http"
	"testing"

	"github.com/SafeMPC/steamguard/internal/api/httperrors"
	"github.com/SafeMPC/steamguard/internal/steamerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNewFromSteamError(t *testing.T) {
	tests := []struct {
		kind steamerr.Kind
		code int
	}{
		{steamerr.KindConfirmationNotFound, http.StatusNotFound},
		{steamerr.KindRateLimited, http.StatusTooManyRequests},
		{steamerr.KindTooManyRequests, http.StatusTooManyRequests},
		{steamerr.KindLoginRequired, http.StatusUnauthorized},
		{steamerr.KindConfirmationRejected, http.StatusConflict},
		{steamerr.KindTradeHold, http.StatusConflict},
		{steamerr.KindInvalidSecret, http.StatusBadRequest},
		{steamerr.KindServerError, http.StatusBadGateway},
		{steamerr.KindInvalidResponse, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := errors.Wrap(steamerr.New(tt.kind, "boom"), "outer")

			httpErr := httperrors.NewFromSteamError(err)
			assert.Equal(t, tt.code, httpErr.Code)
			assert.Equal(t, tt.kind.String(), httpErr.Type)
			assert.ErrorIs(t, httpErr, err)
		})
	}
}

func TestNewFromSteamErrorUnclassified(t *testing.T) {
	httpErr := httperrors.NewFromSteamError(errors.New("plain"))
	assert.Equal(t, http.StatusBadGateway, httpErr.Code)
	assert.Equal(t, "unknown", httpErr.Type)
}
