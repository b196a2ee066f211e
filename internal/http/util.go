package httpx

import (
	"net/http"
	"strconv"
)

// ParseLimitOffset reads the limit and offset query parameters. Missing or
// malformed values take the defaults; limit is clamped to [1, maxLimit] and
// offset to be non-negative.
func ParseLimitOffset(r *http.Request, defLimit, maxLimit int) (int, int) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), defLimit)
	offset := queryInt(q.Get("offset"), 0)

	limit = min(max(limit, 1), max(maxLimit, 1))
	return limit, max(offset, 0)
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
