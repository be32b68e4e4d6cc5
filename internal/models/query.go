package models

// ListQuery captures the pagination and ordering contract shared by every
// listing operation.
type ListQuery struct {
	Page      int    `validate:"omitempty,min=1"`
	PageSize  int    `validate:"omitempty,min=1"`
	SortBy    string `validate:"omitempty,oneof=name order_index"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

// Normalize applies defaults and bounds in place.
func (q *ListQuery) Normalize(defaultSize, maxSize int) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultSize
	}
	if maxSize > 0 && q.PageSize > maxSize {
		q.PageSize = maxSize
	}
	if q.SortOrder != "desc" {
		q.SortOrder = "asc"
	}
}

// Descending reports whether results should sort high to low.
func (q ListQuery) Descending() bool {
	return q.SortOrder == "desc"
}

// Pagination contains pagination metadata returned in list responses.
// TotalCount reflects the post-filter item count.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
