package handler

import (
    "errors"
    "fmt"
    "net/http"
    "net/http/httptest"
    "testing"

    "github.com/labstack/echo/v4"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/haunted-house-queue/internal/allocation"
    "github.com/iliyamo/haunted-house-queue/internal/repository"
)

func TestStatusOf(t *testing.T) {
    cases := map[allocation.Code]int{
        allocation.CodeInvalidInput:           http.StatusBadRequest,
        allocation.CodeNotInQueue:             http.StatusNotFound,
        allocation.CodeInvalidReservationCode: http.StatusNotFound,
        allocation.CodeAlreadyInQueue:         http.StatusConflict,
        allocation.CodeReservationFull:        http.StatusConflict,
        allocation.CodeReservationExpired:     http.StatusGone,
        allocation.CodeMaxReservationAttempts: http.StatusTooManyRequests,
        allocation.CodeCodeGenerationFailed:   http.StatusInternalServerError,
        allocation.CodeDatabaseError:          http.StatusInternalServerError,
    }
    for code, want := range cases {
        assert.Equal(t, want, statusOf(code), code)
    }
}

func TestFailHidesInternalErrors(t *testing.T) {
    e := echo.New()
    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

    require.NoError(t, fail(c, errors.New("dial tcp 10.0.0.1:3306: connection refused")))
    assert.Equal(t, http.StatusInternalServerError, rec.Code)
    assert.Contains(t, rec.Body.String(), "DATABASE_ERROR")
    assert.NotContains(t, rec.Body.String(), "10.0.0.1")
}

func TestFailReportsExhaustedConflicts(t *testing.T) {
    e := echo.New()
    rec := httptest.NewRecorder()
    c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

    require.NoError(t, fail(c, fmt.Errorf("claim spot: %w", repository.ErrConflict)))
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.Contains(t, rec.Body.String(), `"code":"CONFLICT"`)
}
