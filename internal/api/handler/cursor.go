package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const cursorPrefix = "job"

// DecodeJobCursor returns the id of the last job of the previous page, 0 for an empty cursor
func DecodeJobCursor(cursorStr string) (int64, error) {
	if cursorStr == "" {
		return 0, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return 0, err
	}

	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 || parts[0] != cursorPrefix {
		return 0, fmt.Errorf("invalid cursor format")
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid job id in cursor")
	}
	return id, nil
}

func EncodeJobCursor(lastID int64) string {
	cs := fmt.Sprintf("%s|%d", cursorPrefix, lastID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
