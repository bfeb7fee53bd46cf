package response_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/storefront/internal/presentation/http/response"
	"github.com/Additional-Code/storefront/pkg/errorbank"
)

func render(t *testing.T, build func(c echo.Context) error) (int, map[string]any) {
	t.Helper()

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, build(c))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestBuilder_Success(t *testing.T) {
	code, body := render(t, func(c echo.Context) error {
		return response.New(c).WithStatus(http.StatusCreated).WithData([]int{1, 2}).WithPagination(10, 2).Build()
	})

	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, []any{1.0, 2.0}, body["data"])
	assert.Equal(t, map[string]any{"limit": 10.0, "count": 2.0}, body["meta"])
}

func TestBuilder_PublicError(t *testing.T) {
	code, body := render(t, func(c echo.Context) error {
		return response.New(c).WithError(errorbank.NotFound("some products do not exist",
			errorbank.WithDetail("missing_ids", []string{"ghost"}),
		)).Build()
	})

	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "not_found", errBody["kind"])
	assert.Equal(t, "some products do not exist", errBody["message"])
	assert.Equal(t, map[string]any{"missing_ids": []any{"ghost"}}, errBody["details"])
}

func TestBuilder_HidesInternalMessages(t *testing.T) {
	code, body := render(t, func(c echo.Context) error {
		return response.New(c).WithError(errors.New("pq: relation \"orders\" does not exist")).Build()
	})

	assert.Equal(t, http.StatusInternalServerError, code)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "internal", errBody["kind"])
	assert.Equal(t, "Internal Server Error", errBody["message"])
}

func TestBuilder_EchoesRequestID(t *testing.T) {
	_, body := render(t, func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderXRequestID, "req-123")
		return response.New(c).WithData("ok").Build()
	})

	assert.Equal(t, map[string]any{"requestId": "req-123"}, body["meta"])
}
