package code_test

import (
	"net/http"
	"testing"

	"github.com/SafeMPC/steamguard/internal/api"
	"github.com/SafeMPC/steamguard/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCode(t *testing.T) {
	test.WithTestServer(t, &test.MockSession{Alive: true}, &test.MockConfirmations{}, func(s *api.Server) {
		res := test.PerformRequest(t, s, http.MethodGet, "/api/v1/code", nil)
		require.Equal(t, http.StatusOK, res.Code)

		var body map[string]string
		test.ParseResponseAndValidate(t, res, &body)
		assert.Equal(t, "THTN4", body["code"])
		assert.Equal(t, "2023-11-14T22:13:00Z", body["valid_from"])
		assert.Equal(t, "2023-11-14T22:13:30Z", body["valid_to"])
	})
}

func TestGetCodeAt(t *testing.T) {
	test.WithTestServer(t, &test.MockSession{Alive: true}, &test.MockConfirmations{}, func(s *api.Server) {
		res := test.PerformRequest(t, s, http.MethodGet, "/api/v1/code?at=1700000010", nil)
		require.Equal(t, http.StatusOK, res.Code)

		var body map[string]string
		test.ParseResponseAndValidate(t, res, &body)
		assert.Equal(t, "NVRD8", body["code"])
	})
}

func TestGetCodeInvalidAt(t *testing.T) {
	test.WithTestServer(t, &test.MockSession{Alive: true}, &test.MockConfirmations{}, func(s *api.Server) {
		res := test.PerformRequest(t, s, http.MethodGet, "/api/v1/code?at=yesterday", nil)
		test.RequireHTTPError(t, res, http.StatusBadRequest, "generic")
	})
}
