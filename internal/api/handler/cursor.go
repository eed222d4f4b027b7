package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/catalog-migrator/internal/storage"
)

// Cursors are base64 of "<unix nanos>|<key>"

func decodeCursor(cursorStr string) (time.Time, string, error) {
	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return time.Time{}, "", err
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}

	var nanos int64
	if _, err := fmt.Sscanf(parts[0], "%d", &nanos); err != nil {
		return time.Time{}, "", fmt.Errorf("invalid time in cursor: %w", err)
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}

func encodeCursor(at time.Time, key string) string {
	cs := fmt.Sprintf("%d|%s", at.UnixNano(), key)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}

func DecodeJobCursor(cursorStr string) (*storage.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}
	createdAt, requestID, err := decodeCursor(cursorStr)
	if err != nil {
		return nil, err
	}
	return &storage.JobCursor{CreatedAt: createdAt, RequestID: requestID}, nil
}

func EncodeJobCursor(cursor *storage.JobCursor) string {
	return encodeCursor(cursor.CreatedAt, cursor.RequestID)
}

func DecodeResultCursor(cursorStr string) (*storage.ResultCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}
	updatedAt, itemKey, err := decodeCursor(cursorStr)
	if err != nil {
		return nil, err
	}
	return &storage.ResultCursor{UpdatedAt: updatedAt, ItemKey: itemKey}, nil
}

func EncodeResultCursor(cursor *storage.ResultCursor) string {
	return encodeCursor(cursor.UpdatedAt, cursor.ItemKey)
}

// pageSize applies the default and upper bound of list endpoints
func pageSize(requested int) int {
	if requested <= 0 {
		return 20
	}
	if requested > 100 {
		return 100
	}
	return requested
}
