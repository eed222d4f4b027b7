package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/catalog-migrator/internal/domain"
	"github.com/cuongbtq/catalog-migrator/internal/storage"
)

func TestJobCursor_RoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 123456789, time.UTC)
	encoded := EncodeJobCursor(&storage.JobCursor{CreatedAt: at, RequestID: "req|with|pipes"})

	cursor, err := DecodeJobCursor(encoded)
	require.NoError(t, err)
	assert.True(t, cursor.CreatedAt.Equal(at))
	assert.Equal(t, "req|with|pipes", cursor.RequestID)
}

func TestResultCursor_RoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	encoded := EncodeResultCursor(&storage.ResultCursor{UpdatedAt: at, ItemKey: "https://wp.example.com/product/a/"})

	cursor, err := DecodeResultCursor(encoded)
	require.NoError(t, err)
	assert.True(t, cursor.UpdatedAt.Equal(at))
	assert.Equal(t, "https://wp.example.com/product/a/", cursor.ItemKey)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	enc := func(s string) string { return base64.URLEncoding.EncodeToString([]byte(s)) }
	tests := []string{"!!!", enc("no-separator"), enc("abc|key"), enc("123|")}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			_, err := DecodeJobCursor(in)
			assert.Error(t, err)
		})
	}

	cursor, err := DecodeResultCursor("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, 20, pageSize(0))
	assert.Equal(t, 20, pageSize(-3))
	assert.Equal(t, 7, pageSize(7))
	assert.Equal(t, 100, pageSize(500))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "****", maskSecret(""))
	assert.Equal(t, "****", maskSecret("cs_short"))
	assert.Equal(t, "****cdef", maskSecret("cs_0123456789abcdef"))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrJobNotFound, http.StatusNotFound},
		{fmt.Errorf("load: %w", domain.ErrDestinationNotFound), http.StatusNotFound},
		{domain.ErrInvalidSource, http.StatusBadRequest},
		{fmt.Errorf("%w: user id is required", domain.ErrInvalidRequest), http.StatusBadRequest},
		{domain.ErrNoItems, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: status done", domain.ErrJobFinished), http.StatusConflict},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusOf(tt.err))
		})
	}
}
