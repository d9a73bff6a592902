package domain

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Page clamps limit and offset to sane values
func Page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
