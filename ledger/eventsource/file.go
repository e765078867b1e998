package eventsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/0xAtelerix/tokenledger/ledger/library"
	"github.com/0xAtelerix/tokenledger/ledger/types"
)

const DefaultPollInterval = 2 * time.Second

var ErrSourceClosed = errors.New("event source closed")

// LineDecoder turns one line of the file into zero or more ordered events.
type LineDecoder func(line []byte) ([]types.TransferEvent, error)

// FileSource tails a newline-delimited file. When it reaches the end it blocks
// on fsnotify write events, with a poll ticker as a fallback, until the writer
// appends more lines. A trailing line without '\n' is never consumed.
type FileSource struct {
	file     *os.File
	reader   *bufio.Reader
	watcher  *fsnotify.Watcher
	decode   LineDecoder
	position int64 // start of the next unread line
	pending  []Item
	poll     time.Duration
}

func NewFileSource(path string, startPosition int64, decode LineDecoder) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()

		return nil, err
	}

	if err := watcher.Add(path); err != nil {
		f.Close()
		watcher.Close()

		return nil, err
	}

	if startPosition < 0 {
		startPosition = 0
	}

	if _, err := f.Seek(startPosition, io.SeekStart); err != nil {
		f.Close()
		watcher.Close()

		return nil, err
	}

	return &FileSource{
		file:     f,
		reader:   bufio.NewReader(f),
		watcher:  watcher,
		decode:   decode,
		position: startPosition,
		poll:     DefaultPollInterval,
	}, nil
}

func (s *FileSource) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.poll = d
	}
}

// Position is the offset of the next unread line.
func (s *FileSource) Position() int64 {
	return s.position
}

// Next blocks until an event is available or ctx is done. Each item's offset
// is the start of its line, except for the line's last event which carries the
// end of the line, so a restart re-reads partially applied lines and relies on
// duplicate detection.
func (s *FileSource) Next(ctx context.Context) (Item, error) {
	for {
		if len(s.pending) > 0 {
			item := s.pending[0]
			s.pending = s.pending[1:]

			return item, nil
		}

		start, line, ok, err := s.readLine()
		if err != nil {
			return Item{}, err
		}

		if !ok {
			if err := s.wait(ctx); err != nil {
				return Item{}, err
			}

			continue
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		events, err := s.decode(line)
		if err != nil {
			return Item{}, fmt.Errorf("%w: line at offset %d: %w", library.ErrInvalidEvent, start, err)
		}

		for i, ev := range events {
			offset := start
			if i == len(events)-1 {
				offset = s.position
			}

			s.pending = append(s.pending, Item{Event: ev, Offset: offset})
		}
	}
}

func (s *FileSource) readLine() (int64, []byte, bool, error) {
	start := s.position

	line, err := s.reader.ReadBytes('\n')
	if err == nil {
		s.position += int64(len(line))

		return start, line, true, nil
	}

	if !errors.Is(err, io.EOF) {
		return start, nil, false, err
	}

	// incomplete tail: rewind so it is read again once the writer finishes it
	if _, err := s.file.Seek(s.position, io.SeekStart); err != nil {
		return start, nil, false, err
	}

	s.reader.Reset(s.file)

	return start, nil, false, nil
}

func (s *FileSource) wait(ctx context.Context) error {
	timer := time.NewTimer(s.poll)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-s.watcher.Events:
		if !ok {
			return ErrSourceClosed
		}
	case err, ok := <-s.watcher.Errors:
		if !ok {
			return ErrSourceClosed
		}

		log.Ctx(ctx).Warn().Err(err).Str("file", s.file.Name()).Msg("file watcher error")
	case <-timer.C:
	}

	return nil
}

func (s *FileSource) Close() error {
	return errors.Join(s.watcher.Close(), s.file.Close())
}
