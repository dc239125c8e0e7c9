package contracts

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleContracts() []Contract {
	return []Contract{
		{ID: 1, Seller: "s1", AmountTonnes: 100, PriceUSD: 50, DeliveryYear: 2026, Status: StatusCreated},
		{ID: 2, Seller: "s2", AmountTonnes: 20, PriceUSD: 75, DeliveryYear: 2027, Status: StatusPurchased},
		{ID: 3, Seller: "s3", AmountTonnes: 100, PriceUSD: 10, DeliveryYear: 2026, Status: StatusExpired},
		{ID: 4, Seller: "s4", AmountTonnes: 5, PriceUSD: 50, DeliveryYear: 2028, Status: StatusCreated},
		{ID: 5, Seller: "s5", AmountTonnes: 60, PriceUSD: 50, DeliveryYear: 2026, Status: StatusSettled},
		{ID: 6, Seller: "s6", AmountTonnes: 1, PriceUSD: 99, DeliveryYear: 2029, Status: StatusCreated},
		{ID: 7, Seller: "s7", AmountTonnes: 100, PriceUSD: 35, DeliveryYear: 2026, Status: StatusPurchased},
	}
}

func ids(list []Contract) []uint64 {
	out := make([]uint64, len(list))
	for i, c := range list {
		out[i] = c.ID
	}
	return out
}

func TestFilterIsCaseInsensitiveSubstring(t *testing.T) {
	list := sampleContracts()

	for _, f := range []string{"created", "CREATED", "eat", "urch", "xyz", ""} {
		got := Filter(list, f)
		for _, c := range got {
			assert.Contains(t, strings.ToLower(string(c.Status)), strings.ToLower(f))
		}
		excluded := len(list) - len(got)
		for _, c := range list {
			if !strings.Contains(strings.ToLower(string(c.Status)), strings.ToLower(f)) {
				excluded--
			}
		}
		assert.Zero(t, excluded, "filter %q dropped a matching contract", f)
	}

	assert.Equal(t, []uint64{1, 4, 6}, ids(Filter(list, "cReAtEd")))
	assert.Len(t, Filter(list, ""), len(list))
}

func TestSortByKeyAndDirection(t *testing.T) {
	list := sampleContracts()

	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, ids(Sort(list, SortByID, Ascending)))
	assert.Equal(t, []uint64{7, 6, 5, 4, 3, 2, 1}, ids(Sort(list, SortByID, Descending)))

	// ties keep input order in both directions
	assert.Equal(t, []uint64{3, 7, 1, 4, 5, 2, 6}, ids(Sort(list, SortByPrice, Ascending)))
	assert.Equal(t, []uint64{6, 2, 1, 4, 5, 7, 3}, ids(Sort(list, SortByPrice, Descending)))
	assert.Equal(t, []uint64{6, 4, 2, 5, 1, 3, 7}, ids(Sort(list, SortByAmount, Ascending)))
	assert.Equal(t, []uint64{1, 4, 6, 3, 2, 7, 5}, ids(Sort(list, SortByStatus, Ascending)))
}

func TestSortIsConsistentWithKey(t *testing.T) {
	list := sampleContracts()

	for _, key := range []SortKey{SortByID, SortByPrice, SortByAmount, SortByStatus} {
		cmp := comparator(key)
		asc := Sort(list, key, Ascending)
		desc := Sort(list, key, Descending)
		for i := 1; i < len(list); i++ {
			assert.LessOrEqual(t, cmp(asc[i-1], asc[i]), 0, "key %s asc", key)
			assert.GreaterOrEqual(t, cmp(desc[i-1], desc[i]), 0, "key %s desc", key)
		}
	}
}

func TestSortDoesNotMutateInput(t *testing.T) {
	list := sampleContracts()
	_ = Sort(list, SortByPrice, Descending)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, ids(list))
}

func TestUnknownSortKeyFallsBackToID(t *testing.T) {
	list := sampleContracts()
	assert.Equal(t, ids(Sort(list, SortByID, Ascending)), ids(Sort(list, "seller; drop", Ascending)))

	q := ViewQuery{SortKey: "bogus", Direction: "sideways"}.Normalize()
	assert.Equal(t, SortByID, q.SortKey)
	assert.Equal(t, Descending, q.Direction)
	assert.Equal(t, DefaultPageSize, q.PageSize)
}

func TestPaginate(t *testing.T) {
	list := sampleContracts()

	assert.Equal(t, []uint64{1, 2, 3}, ids(Paginate(list, 1, 3)))
	assert.Equal(t, []uint64{7}, ids(Paginate(list, 3, 3)))
	assert.Empty(t, Paginate(list, 4, 3))
	assert.Empty(t, Paginate(list, 0, 3))
	assert.Empty(t, Paginate(list, -2, 3))
	assert.Empty(t, Paginate(nil, 1, 3))
}

func TestPagesReconstructFilteredSortedList(t *testing.T) {
	list := sampleContracts()

	for _, size := range []int{1, 2, 3, 5, 10} {
		q := ViewQuery{StatusFilter: "e", SortKey: SortByAmount, Direction: Descending, PageSize: size}
		want := DeriveAll(list, q)

		var got []Contract
		for page := 1; ; page++ {
			q.Page = page
			v := Derive(list, q)
			if len(v.Items) == 0 {
				assert.Equal(t, page-1, v.TotalPages)
				break
			}
			got = append(got, v.Items...)
		}
		require.Equal(t, ids(want), ids(got), "page size %d", size)
	}
}

func TestDeriveMetadata(t *testing.T) {
	v := Derive(sampleContracts(), ViewQuery{StatusFilter: "created", SortKey: SortByID, Direction: Ascending, Page: 1, PageSize: 2})

	assert.Equal(t, []uint64{1, 4}, ids(v.Items))
	assert.Equal(t, 3, v.TotalCount)
	assert.Equal(t, 2, v.TotalPages)
	assert.False(t, v.HasPrev)
	assert.True(t, v.HasNext)

	v = Derive(sampleContracts(), ViewQuery{StatusFilter: "created", SortKey: SortByID, Direction: Ascending, Page: 9, PageSize: 2})
	assert.Empty(t, v.Items)
	assert.True(t, v.HasPrev)
	assert.False(t, v.HasNext)
}

func TestDeriveExtremePaging(t *testing.T) {
	list := sampleContracts()

	tests := []struct {
		name      string
		page      int
		pageSize  int
		wantIDs   []uint64
		wantPages int
		wantPrev  bool
		wantNext  bool
	}{
		{name: "page zero", page: 0, pageSize: 3, wantIDs: []uint64{}, wantPages: 3, wantNext: false},
		{name: "negative page", page: -4, pageSize: 3, wantIDs: []uint64{}, wantPages: 3},
		{name: "max page", page: math.MaxInt, pageSize: 5, wantIDs: []uint64{}, wantPages: 2, wantPrev: true},
		{name: "page beyond overflow", page: 1<<61 + 1, pageSize: 5, wantIDs: []uint64{}, wantPages: 2, wantPrev: true},
		{name: "max page size", page: 1, pageSize: math.MaxInt, wantIDs: []uint64{1, 2, 3, 4, 5, 6, 7}, wantPages: 1},
		{name: "max page and size", page: math.MaxInt, pageSize: math.MaxInt, wantIDs: []uint64{}, wantPages: 1, wantPrev: true},
		{name: "zero page size", page: 2, pageSize: 0, wantIDs: []uint64{6, 7}, wantPages: 2, wantPrev: true},
		{name: "negative page size", page: 1, pageSize: -1, wantIDs: []uint64{1, 2, 3, 4, 5}, wantPages: 2, wantNext: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Derive(list, ViewQuery{SortKey: SortByID, Direction: Ascending, Page: tt.page, PageSize: tt.pageSize})

			assert.Equal(t, tt.wantIDs, ids(v.Items))
			assert.Equal(t, len(list), v.TotalCount)
			assert.Equal(t, tt.wantPages, v.TotalPages)
			assert.Equal(t, tt.wantPrev, v.HasPrev)
			assert.Equal(t, tt.wantNext, v.HasNext)
		})
	}
}

func TestPaginateLargeValues(t *testing.T) {
	list := sampleContracts()

	assert.Empty(t, Paginate(list, math.MaxInt, 5))
	assert.Empty(t, Paginate(list, math.MaxInt, math.MaxInt))
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7}, ids(Paginate(list, 1, math.MaxInt)))
	assert.Equal(t, 1, pageCount(12, math.MaxInt))
	assert.Equal(t, 3, pageCount(12, 5))
	assert.Equal(t, 0, pageCount(0, 5))
}
