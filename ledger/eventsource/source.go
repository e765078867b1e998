package eventsource

import (
	"context"
	"io"
	"sync"

	"github.com/0xAtelerix/tokenledger/ledger/types"
)

// Item is one event and the source offset to resume from once it is committed.
type Item struct {
	Event  types.TransferEvent
	Offset int64
}

// SliceSource replays a fixed, already ordered list of events. Offsets are the
// index of the next event.
type SliceSource struct {
	mu     sync.Mutex
	events []types.TransferEvent
	next   int
}

func NewSliceSource(events ...types.TransferEvent) *SliceSource {
	return &SliceSource{events: events}
}

// Seek moves the source to offset, as returned in a previous Item.
func (s *SliceSource) Seek(offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next = min(max(int(offset), 0), len(s.events))
}

// Next returns io.EOF once every event has been handed out.
func (s *SliceSource) Next(ctx context.Context) (Item, error) {
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.events) {
		return Item{}, io.EOF
	}

	ev := s.events[s.next]
	s.next++

	return Item{Event: ev, Offset: int64(s.next)}, nil
}
