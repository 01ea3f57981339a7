/******************************************************************************
 *
 *  Description :
 *
 *    Domain mutation layer. Service owns the mutation entry points; each
 *    validates references and authorization first, commits through the
 *    store, and only then hands events to the broker. Either the whole
 *    write-plus-emission sequence happens or nothing does.
 *
 *****************************************************************************/

// Package domain implements the mutation layer, the visibility resolver
// and the paginated read paths of the chat backend.
package domain

import (
	"github.com/mercury-im/mercury/server/broker"
	"github.com/mercury-im/mercury/server/logs"
	"github.com/mercury-im/mercury/server/paging"
	"github.com/mercury-im/mercury/server/store"
	t "github.com/mercury-im/mercury/server/store/types"
)

// Service is the domain mutation layer. One instance per process,
// constructed by the root and shared by the transport.
type Service struct {
	store  *store.Store
	broker *broker.Broker
}

// NewService binds the mutation layer to its store and broker.
func NewService(s *store.Store, b *broker.Broker) *Service {
	return &Service{store: s, broker: b}
}

// publish hands an event to the broker. Emission failures are logged,
// not returned: the mutation has already committed and the caller's
// state change stands.
func (s *Service) publish(ev broker.Event) {
	if err := s.broker.Publish(ev); err != nil {
		logs.Err.Printf("domain: failed to publish %s: %v", ev.EventName(), err)
	}
}

// Page is a Relay-style page request. Forward (First/After) and backward
// (Last/Before) must not be mixed; a zero Page returns everything.
type Page struct {
	First  *int
	After  *t.Uid
	Last   *int
	Before *t.Uid
}

func (p Page) backward() bool {
	return p.Last != nil || p.Before != nil
}

// Connection is a page of items plus its position in the collection.
type Connection[T any] struct {
	Items []T
	Info  paging.PageInfo
}

// pageOf paginates any slice of entities already sorted ascending by
// ordinal.
func pageOf[T any](items []T, ord func(T) t.Uid, p Page) Connection[T] {
	ords := make([]t.Uid, len(items))
	for i, it := range items {
		ords[i] = ord(it)
	}
	var lo, hi int
	var info paging.PageInfo
	if p.backward() {
		lo, hi, info = paging.BackwardRange(ords, p.Last, p.Before)
	} else {
		lo, hi, info = paging.ForwardRange(ords, p.First, p.After)
	}
	return Connection[T]{Items: items[lo:hi], Info: info}
}
