package preview

// Navigator holds the page position of an open preview
type Navigator struct {
	Page      int
	PageCount int
}

// ShowControls reports whether page navigation should be offered at all
func (n Navigator) ShowControls() bool {
	return n.PageCount > 1
}

// CanPrev reports whether a previous page exists
func (n Navigator) CanPrev() bool {
	return n.Page > 1
}

// CanNext reports whether a next page exists
func (n Navigator) CanNext() bool {
	return n.Page < n.PageCount
}

// Prev returns the previous page number, staying put at the first page
func (n Navigator) Prev() int {
	if n.CanPrev() {
		return n.Page - 1
	}
	return n.Page
}

// Next returns the next page number, staying put at the last page
func (n Navigator) Next() int {
	if n.CanNext() {
		return n.Page + 1
	}
	return n.Page
}

// Clamp forces page into [1, total]. With no pages it returns 1.
func Clamp(page, total int) int {
	if total < 1 || page < 1 {
		return 1
	}
	if page > total {
		return total
	}
	return page
}
