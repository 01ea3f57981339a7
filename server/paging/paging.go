// Package paging implements cursor pagination over ordered collections of
// ordinals (Relay connection semantics).
//
// Every paginated collection in the system - messages of a chat, a user's
// chats, contacts, blocked users, stars, bookmarks, search results - obeys
// the same law, so it is implemented once here over a sorted slice of live
// ordinals. The cursor is the ordinal itself. A cursor referencing a
// deleted entity stays a valid boundary: the split point is a pure numeric
// comparison, never an existence lookup.
package paging

import (
	"sort"

	t "github.com/mercury-im/mercury/server/store/types"
)

// PageInfo describes the position of a returned page within its
// collection.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	// StartCursor and EndCursor are the ordinals of the first and last
	// returned items, zero when the page is empty.
	StartCursor t.Uid
	EndCursor   t.Uid
}

// ForwardRange computes the half-open index range [lo, hi) of the page for
// a forward request over live ordinals sorted ascending. Candidates are
// the ordinals strictly greater than 'after' (all of them when 'after' is
// nil); the page is the first 'first' of those (all when 'first' is nil).
func ForwardRange(ords []t.Uid, first *int, after *t.Uid) (int, int, PageInfo) {
	lo := 0
	if after != nil {
		a := *after
		lo = sort.Search(len(ords), func(i int) bool { return ords[i] > a })
	}
	hi := len(ords)
	if first != nil && *first >= 0 && lo+*first < hi {
		hi = lo + *first
	}
	return lo, hi, pageInfo(ords, lo, hi)
}

// BackwardRange is the mirror of ForwardRange: candidates are the ordinals
// strictly less than 'before', the page is the last 'last' of those,
// returned in ascending order.
func BackwardRange(ords []t.Uid, last *int, before *t.Uid) (int, int, PageInfo) {
	hi := len(ords)
	if before != nil {
		b := *before
		hi = sort.Search(len(ords), func(i int) bool { return ords[i] >= b })
	}
	lo := 0
	if last != nil && *last >= 0 && hi-*last > 0 {
		lo = hi - *last
	}
	return lo, hi, pageInfo(ords, lo, hi)
}

// Forward returns the page itself rather than its index range.
func Forward(ords []t.Uid, first *int, after *t.Uid) ([]t.Uid, PageInfo) {
	lo, hi, info := ForwardRange(ords, first, after)
	return ords[lo:hi], info
}

// Backward returns the page itself rather than its index range.
func Backward(ords []t.Uid, last *int, before *t.Uid) ([]t.Uid, PageInfo) {
	lo, hi, info := BackwardRange(ords, last, before)
	return ords[lo:hi], info
}

// Boundary returns the smallest and largest live ordinals of the
// collection, zero Uids when it is empty.
func Boundary(ords []t.Uid) (start, end t.Uid) {
	if len(ords) == 0 {
		return t.ZeroUid, t.ZeroUid
	}
	return ords[0], ords[len(ords)-1]
}

func pageInfo(ords []t.Uid, lo, hi int) PageInfo {
	info := PageInfo{
		// Live ordinals exist before the start of the page.
		HasPreviousPage: lo > 0,
		// Live ordinals exist past the end of the page.
		HasNextPage: hi < len(ords),
	}
	if hi > lo {
		info.StartCursor = ords[lo]
		info.EndCursor = ords[hi-1]
	}
	return info
}
