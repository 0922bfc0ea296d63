package sharevault

import (
	"strconv"
	"strings"
)

const (
	// DefaultLimit is the page size used when none (or an unusable one) is given
	DefaultLimit = 12
	// MaxLimit caps the page size a caller may request
	MaxLimit = 100
)

// PageRequest is a normalized offset/limit pair
type PageRequest struct {
	Offset int
	Limit  int
}

// DefaultPageRequest returns the first page at the default size
func DefaultPageRequest() PageRequest {
	return PageRequest{Offset: 0, Limit: DefaultLimit}
}

// ParsePageRequest normalizes raw offset and limit query values.
//
// Absent, unparsable or negative offsets become 0. Absent, unparsable or
// non-positive limits become DefaultLimit. Limits above MaxLimit are capped.
func ParsePageRequest(rawOffset, rawLimit string) PageRequest {
	req := DefaultPageRequest()

	if n, err := strconv.Atoi(strings.TrimSpace(rawOffset)); err == nil && n > 0 {
		req.Offset = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(rawLimit)); err == nil && n > 0 {
		req.Limit = min(n, MaxLimit)
	}
	return req
}

// ParsePageRequestStrict is ParsePageRequest that rejects malformed input
// with a *ValidationError instead of substituting defaults. Absent values
// still take their defaults and the limit is still capped.
func ParsePageRequestStrict(rawOffset, rawLimit string) (PageRequest, error) {
	req := DefaultPageRequest()

	if s := strings.TrimSpace(rawOffset); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, NewValidationError("offset", "must be an integer, got %q", rawOffset)
		}
		if n < 0 {
			return req, NewValidationError("offset", "must not be negative")
		}
		req.Offset = n
	}

	if s := strings.TrimSpace(rawLimit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return req, NewValidationError("limit", "must be an integer, got %q", rawLimit)
		}
		if n <= 0 {
			return req, NewValidationError("limit", "must be positive")
		}
		req.Limit = min(n, MaxLimit)
	}
	return req, nil
}

// Window returns the page metadata for items fetched under req
func (r PageRequest) Window(items []ContentItem, total int) *Page[ContentItem] {
	if items == nil {
		items = []ContentItem{}
	}
	return &Page[ContentItem]{
		Items:  items,
		Offset: r.Offset,
		Limit:  r.Limit,
		Total:  total,
	}
}
