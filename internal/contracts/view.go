package contracts

import (
	"sort"
	"strings"
)

// SortKey selects the contract field a view is ordered by.
type SortKey string

const (
	SortByID     SortKey = "id"
	SortByPrice  SortKey = "price_usd"
	SortByAmount SortKey = "amount_tonnes"
	SortByStatus SortKey = "status"
)

// SortDirection orders a view ascending or descending.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// DefaultPageSize matches the page size of the contract list screen.
const DefaultPageSize = 5

// MaxPageSize bounds page sizes requested by clients.
const MaxPageSize = 100

// ParseSortKey returns the matching key, falling back to id.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortByID, SortByPrice, SortByAmount, SortByStatus:
		return SortKey(s)
	}
	return SortByID
}

// ParseSortDirection returns the matching direction, falling back to descending.
func ParseSortDirection(s string) SortDirection {
	switch SortDirection(strings.ToLower(s)) {
	case Ascending:
		return Ascending
	case Descending:
		return Descending
	}
	return Descending
}

// ViewQuery describes which slice of the contract list to display.
type ViewQuery struct {
	StatusFilter string        `json:"status_filter"`
	SortKey      SortKey       `json:"sort_key"`
	Direction    SortDirection `json:"direction"`
	Page         int           `json:"page"`
	PageSize     int           `json:"page_size"`
}

// Normalize applies the fallbacks for unknown keys, directions and page sizes.
// The page number is kept as is so out-of-range pages stay empty.
func (q ViewQuery) Normalize() ViewQuery {
	q.SortKey = ParseSortKey(string(q.SortKey))
	q.Direction = ParseSortDirection(string(q.Direction))
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	return q
}

// View is the display-ready projection of a contract list.
type View struct {
	Query      ViewQuery  `json:"query"`
	Items      []Contract `json:"items"`
	TotalCount int        `json:"total_count"`
	TotalPages int        `json:"total_pages"`
	HasPrev    bool       `json:"has_prev"`
	HasNext    bool       `json:"has_next"`
}

// Filter keeps the contracts whose status contains the filter,
// case-insensitively. An empty filter keeps everything.
func Filter(list []Contract, statusFilter string) []Contract {
	out := make([]Contract, 0, len(list))
	needle := strings.ToLower(statusFilter)
	for _, c := range list {
		if needle == "" || strings.Contains(strings.ToLower(string(c.Status)), needle) {
			out = append(out, c)
		}
	}
	return out
}

// Sort returns a copy of list ordered by key and direction. Equal keys keep
// their input order in both directions.
func Sort(list []Contract, key SortKey, dir SortDirection) []Contract {
	out := make([]Contract, len(list))
	copy(out, list)

	cmp := comparator(ParseSortKey(string(key)))
	desc := ParseSortDirection(string(dir)) == Descending
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return cmp(out[j], out[i]) < 0
		}
		return cmp(out[i], out[j]) < 0
	})
	return out
}

// Paginate returns the 1-based page of list. Pages outside the available range
// are empty.
func Paginate(list []Contract, page, pageSize int) []Contract {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 || page-1 >= pageCount(len(list), pageSize) {
		return []Contract{}
	}
	start := (page - 1) * pageSize
	end := len(list)
	if pageSize < end-start {
		end = start + pageSize
	}
	out := make([]Contract, end-start)
	copy(out, list[start:end])
	return out
}

// Derive filters, sorts and paginates list according to q.
func Derive(list []Contract, q ViewQuery) View {
	q = q.Normalize()

	filtered := Sort(Filter(list, q.StatusFilter), q.SortKey, q.Direction)
	total := len(filtered)
	pages := pageCount(total, q.PageSize)

	return View{
		Query:      q,
		Items:      Paginate(filtered, q.Page, q.PageSize),
		TotalCount: total,
		TotalPages: pages,
		HasPrev:    q.Page > 1,
		HasNext:    q.Page >= 1 && q.Page < pages,
	}
}

// pageCount is the number of pages needed for total items. It does not
// overflow for any positive size.
func pageCount(total, size int) int {
	pages := total / size
	if total%size != 0 {
		pages++
	}
	return pages
}

// DeriveAll filters and sorts list according to q without paginating.
func DeriveAll(list []Contract, q ViewQuery) []Contract {
	q = q.Normalize()
	return Sort(Filter(list, q.StatusFilter), q.SortKey, q.Direction)
}

func comparator(key SortKey) func(a, b Contract) int {
	switch key {
	case SortByPrice:
		return func(a, b Contract) int { return compareFloat(a.PriceUSD, b.PriceUSD) }
	case SortByAmount:
		return func(a, b Contract) int { return compareFloat(a.AmountTonnes, b.AmountTonnes) }
	case SortByStatus:
		return func(a, b Contract) int { return strings.Compare(string(a.Status), string(b.Status)) }
	default:
		return func(a, b Contract) int {
			switch {
			case a.ID < b.ID:
				return -1
			case a.ID > b.ID:
				return 1
			}
			return 0
		}
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
