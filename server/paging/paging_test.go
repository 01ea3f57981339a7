package paging

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	t "github.com/mercury-im/mercury/server/store/types"
)

func intPtr(v int) *int     { return &v }
func uidPtr(v t.Uid) *t.Uid { return &v }

func uids(vals ...uint64) []t.Uid {
	out := make([]t.Uid, len(vals))
	for i, v := range vals {
		out[i] = t.Uid(v)
	}
	return out
}

func TestForward(t_ *testing.T) {
	ten := uids(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	tests := []struct {
		name     string
		ords     []t.Uid
		first    *int
		after    *t.Uid
		wantPage []t.Uid
		wantInfo PageInfo
	}{
		{
			name:     "empty collection",
			ords:     nil,
			wantPage: uids(),
			wantInfo: PageInfo{},
		},
		{
			name:     "empty collection with limit and cursor",
			ords:     nil,
			first:    intPtr(3),
			after:    uidPtr(5),
			wantPage: uids(),
			wantInfo: PageInfo{},
		},
		{
			name:     "single item no args",
			ords:     uids(7),
			wantPage: uids(7),
			wantInfo: PageInfo{StartCursor: 7, EndCursor: 7},
		},
		{
			name:     "no cursor no limit returns everything",
			ords:     ten,
			wantPage: ten,
			wantInfo: PageInfo{StartCursor: 1, EndCursor: 10},
		},
		{
			name:     "first k from the start",
			ords:     ten,
			first:    intPtr(3),
			wantPage: uids(1, 2, 3),
			wantInfo: PageInfo{HasNextPage: true, StartCursor: 1, EndCursor: 3},
		},
		{
			name:     "first equals size",
			ords:     ten,
			first:    intPtr(10),
			wantPage: ten,
			wantInfo: PageInfo{StartCursor: 1, EndCursor: 10},
		},
		{
			name:     "zero items with no cursor",
			ords:     ten,
			first:    intPtr(0),
			wantPage: uids(),
			wantInfo: PageInfo{HasNextPage: true},
		},
		{
			name:     "after a mid cursor",
			ords:     ten,
			first:    intPtr(4),
			after:    uidPtr(3),
			wantPage: uids(4, 5, 6, 7),
			wantInfo: PageInfo{HasNextPage: true, HasPreviousPage: true, StartCursor: 4, EndCursor: 7},
		},
		{
			name:     "after the last item",
			ords:     ten,
			after:    uidPtr(10),
			wantPage: uids(),
			wantInfo: PageInfo{HasPreviousPage: true},
		},
		{
			name:     "after past the last item",
			ords:     ten,
			after:    uidPtr(99),
			wantPage: uids(),
			wantInfo: PageInfo{HasPreviousPage: true},
		},
		{
			name:     "after below the first item",
			ords:     ten,
			first:    intPtr(2),
			after:    uidPtr(0),
			wantPage: uids(1, 2),
			wantInfo: PageInfo{HasNextPage: true, StartCursor: 1, EndCursor: 2},
		},
		{
			name:     "deleted cursor splits numerically",
			ords:     uids(1, 2, 3, 5, 6, 7, 8, 9, 10),
			first:    intPtr(3),
			after:    uidPtr(4),
			wantPage: uids(5, 6, 7),
			wantInfo: PageInfo{HasNextPage: true, HasPreviousPage: true, StartCursor: 5, EndCursor: 7},
		},
		{
			name:     "zero items at a deleted cursor",
			ords:     uids(1, 2, 3, 5, 6),
			first:    intPtr(0),
			after:    uidPtr(4),
			wantPage: uids(),
			wantInfo: PageInfo{HasNextPage: true, HasPreviousPage: true},
		},
	}

	for _, tc := range tests {
		t_.Run(tc.name, func(t_ *testing.T) {
			page, info := Forward(tc.ords, tc.first, tc.after)
			if !equalUids(page, tc.wantPage) {
				t_.Errorf("page: expected %v, got %v", tc.wantPage, page)
			}
			if diff := cmp.Diff(tc.wantInfo, info); diff != "" {
				t_.Errorf("info mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func equalUids(a, b []t.Uid) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBackward(t_ *testing.T) {
	ten := uids(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	tests := []struct {
		name     string
		ords     []t.Uid
		last     *int
		before   *t.Uid
		wantPage []t.Uid
		wantInfo PageInfo
	}{
		{
			name:     "empty collection",
			ords:     nil,
			wantPage: uids(),
			wantInfo: PageInfo{},
		},
		{
			name:     "no cursor no limit returns everything",
			ords:     ten,
			wantPage: ten,
			wantInfo: PageInfo{StartCursor: 1, EndCursor: 10},
		},
		{
			name:     "last k ascending",
			ords:     ten,
			last:     intPtr(3),
			wantPage: uids(8, 9, 10),
			wantInfo: PageInfo{HasPreviousPage: true, StartCursor: 8, EndCursor: 10},
		},
		{
			name:     "zero items with no cursor",
			ords:     ten,
			last:     intPtr(0),
			wantPage: uids(),
			wantInfo: PageInfo{HasPreviousPage: true},
		},
		{
			name:     "before a mid cursor",
			ords:     ten,
			last:     intPtr(2),
			before:   uidPtr(6),
			wantPage: uids(4, 5),
			wantInfo: PageInfo{HasNextPage: true, HasPreviousPage: true, StartCursor: 4, EndCursor: 5},
		},
		{
			name:     "before the first item",
			ords:     ten,
			before:   uidPtr(1),
			wantPage: uids(),
			wantInfo: PageInfo{HasNextPage: true},
		},
		{
			name:     "before below the first item",
			ords:     ten,
			before:   uidPtr(0),
			wantPage: uids(),
			wantInfo: PageInfo{HasNextPage: true},
		},
		{
			name:   "items 1-10 with 4 deleted, last 3 before 6",
			ords:   uids(1, 2, 3, 5, 6, 7, 8, 9, 10),
			last:   intPtr(3),
			before: uidPtr(6),
			// The deleted ordinal 4 is still a pure numeric split point.
			wantPage: uids(2, 3, 5),
			wantInfo: PageInfo{HasNextPage: true, HasPreviousPage: true, StartCursor: 2, EndCursor: 5},
		},
		{
			name:     "before a deleted cursor",
			ords:     uids(1, 2, 3, 5, 6),
			last:     intPtr(2),
			before:   uidPtr(4),
			wantPage: uids(2, 3),
			wantInfo: PageInfo{HasNextPage: true, HasPreviousPage: true, StartCursor: 2, EndCursor: 3},
		},
		{
			name:     "last exceeds candidates",
			ords:     ten,
			last:     intPtr(20),
			before:   uidPtr(4),
			wantPage: uids(1, 2, 3),
			wantInfo: PageInfo{HasNextPage: true, StartCursor: 1, EndCursor: 3},
		},
	}

	for _, tc := range tests {
		t_.Run(tc.name, func(t_ *testing.T) {
			page, info := Backward(tc.ords, tc.last, tc.before)
			if !equalUids(page, tc.wantPage) {
				t_.Errorf("page: expected %v, got %v", tc.wantPage, page)
			}
			if diff := cmp.Diff(tc.wantInfo, info); diff != "" {
				t_.Errorf("info mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeletedCursorStability(t_ *testing.T) {
	// Deleting an item must not change the pages produced by cursors
	// around it.
	full := uids(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	withoutFour := uids(1, 2, 3, 5, 6, 7, 8, 9, 10)

	// Paginate forward with after=3 (the ordinal immediately before the
	// deleted one). The items following the deletion point must be the
	// same as if 4 never existed.
	pageFull, _ := Forward(full, intPtr(3), uidPtr(3))
	if !equalUids(pageFull, uids(4, 5, 6)) {
		t_.Fatalf("precondition: expected [4 5 6], got %v", pageFull)
	}
	pageDel, _ := Forward(withoutFour, intPtr(3), uidPtr(3))
	if !equalUids(pageDel, uids(5, 6, 7)) {
		t_.Errorf("after deletion: expected [5 6 7], got %v", pageDel)
	}

	// Using the deleted ordinal itself as the cursor behaves as if the
	// entity still existed at that position.
	pageAt, info := Forward(withoutFour, intPtr(2), uidPtr(4))
	if !equalUids(pageAt, uids(5, 6)) {
		t_.Errorf("deleted cursor: expected [5 6], got %v", pageAt)
	}
	if !info.HasPreviousPage {
		t_.Errorf("deleted cursor: expected HasPreviousPage=true")
	}
}

func TestBoundary(t_ *testing.T) {
	if start, end := Boundary(nil); start != t.ZeroUid || end != t.ZeroUid {
		t_.Errorf("empty: expected zero cursors, got %v, %v", start, end)
	}
	if start, end := Boundary(uids(42)); start != 42 || end != 42 {
		t_.Errorf("single: expected 42/42, got %v/%v", start, end)
	}
	if start, end := Boundary(uids(2, 5, 9)); start != 2 || end != 9 {
		t_.Errorf("multi: expected 2/9, got %v/%v", start, end)
	}
}
