// Package decodeengine implements C5: the playlist's doubly linked item
// list and its decode worker goroutine, grounded on climp's Player and its
// monitor() goroutine (internal/player/player.go) generalized from "drive
// one decoder into one oto.Player" to "drive one decoder into N sink
// groups through a filter graph", plus original_source/groove/playlist.c
// for the decode loop's state machine and lock/condvar protocol.
//
// One divergence from spec.md §4.5's pseudocode: the playlist lock is held
// for the whole of decodeOneChunkLocked, including the decoder Read call,
// instead of being released around it. Nothing downstream of this engine
// runs in a real-time context (that constraint applies to internal/playback's
// device callback, not here), so the simpler always-locked shape was
// chosen over matching the release/reacquire dance frame for frame.
package decodeengine

import (
	"fmt"
	"io"
	"sync"

	"github.com/climp-audio/groove/internal/audiofmt"
	"github.com/climp-audio/groove/internal/filtergraph"
	"github.com/climp-audio/groove/internal/logging"
	"github.com/climp-audio/groove/internal/refbuffer"
	"github.com/climp-audio/groove/internal/sinkcore"

	charmlog "github.com/charmbracelet/log"
)

// FillMode selects when the decode worker considers the playlist "full"
// and stops decoding ahead of its sinks (spec.md §4.5).
type FillMode int

const (
	// AnySinkFull stops decoding once any attached sink's fill level
	// reaches its threshold.
	AnySinkFull FillMode = iota
	// EverySinkFull stops decoding only once every attached sink is full.
	EverySinkFull
)

// Item is one playlist entry: a doubly linked list node wrapping a File
// the caller still owns (spec.md §3 "owning-but-not-freeing").
type Item struct {
	prev, next *Item

	File *File
	Gain float64
	Peak float64
}

// Next returns the item following it in its playlist, or nil at the tail.
func (it *Item) Next() *Item { return it.next }

// Prev returns the item preceding it in its playlist, or nil at the head.
func (it *Item) Prev() *Item { return it.prev }

// Playlist is the decode engine: an ordered item list, a sink registry, a
// lazily rebuilt filter graph, and the single decode worker goroutine that
// drives them.
type Playlist struct {
	mu             sync.Mutex
	decodeHeadCond *sync.Cond
	sinkDrainCond  *sync.Cond

	head, tail *Item
	count      int
	cursor     *Item
	cursorPos  float64 // seconds into cursor, decode-side

	gain     float64
	paused   bool
	fillMode FillMode

	sinks   []*sinkcore.Sink
	sinkMap *sinkcore.Map
	graph   *filtergraph.Graph

	rebuildGraph bool
	sentEnd      bool
	purgeItem    *Item

	aborting bool
	stopped  chan struct{}

	log *charmlog.Logger
}

// New creates a Playlist with default global gain 1.0 and AnySinkFull fill
// mode, and starts its decode worker goroutine. A nil log uses the shared
// logger from internal/logging, scoped to this playlist's component name.
func New(log *charmlog.Logger) *Playlist {
	if log == nil {
		log = logging.Default("decodeengine")
	} else {
		log = log.With("component", "decodeengine")
	}
	pl := &Playlist{
		gain:    1.0,
		graph:   filtergraph.New(),
		stopped: make(chan struct{}),
		log:     log,
	}
	pl.decodeHeadCond = sync.NewCond(&pl.mu)
	pl.sinkDrainCond = sync.NewCond(&pl.mu)
	go pl.run()
	return pl
}

// Destroy signals the decode worker to stop and waits for it to exit.
func (pl *Playlist) Destroy() {
	pl.mu.Lock()
	pl.aborting = true
	pl.mu.Unlock()
	pl.decodeHeadCond.Broadcast()
	pl.sinkDrainCond.Broadcast()
	<-pl.stopped
}

// Insert adds a new item wrapping file before the before item (or at the
// tail if before is nil), returning the new item. If the playlist was
// empty, the new item becomes the decode cursor and the worker is woken.
func (pl *Playlist) Insert(file *File, gain, peak float64, before *Item) *Item {
	if peak <= 0 {
		peak = 1.0
	}
	it := &Item{File: file, Gain: gain, Peak: peak}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	switch {
	case pl.head == nil:
		pl.head, pl.tail = it, it
	case before == nil:
		it.prev = pl.tail
		pl.tail.next = it
		pl.tail = it
	default:
		it.next = before
		it.prev = before.prev
		if before.prev != nil {
			before.prev.next = it
		} else {
			pl.head = it
		}
		before.prev = it
	}
	pl.count++

	if pl.cursor == nil {
		pl.cursor = it
		pl.cursorPos = 0
		pl.sentEnd = false
		pl.decodeHeadCond.Signal()
	}
	return it
}

// Remove unlinks item from the playlist, advances the decode cursor past
// it if necessary, and purges every sink's queue of buffers referencing it
// (spec.md §4.5 "Remove protocol").
func (pl *Playlist) Remove(item *Item) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if item.prev != nil {
		item.prev.next = item.next
	} else {
		pl.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		pl.tail = item.prev
	}
	pl.count--

	if pl.cursor == item {
		pl.cursor = item.next
		pl.cursorPos = 0
	}

	pl.purgeItem = item
	for _, s := range pl.sinks {
		s.PurgeItem(item)
	}
	pl.purgeItem = nil

	pl.sinkDrainCond.Signal()
}

// Clear removes every item from the playlist.
func (pl *Playlist) Clear() {
	for {
		pl.mu.Lock()
		it := pl.head
		pl.mu.Unlock()
		if it == nil {
			return
		}
		pl.Remove(it)
	}
}

// Count returns the number of items currently in the playlist.
func (pl *Playlist) Count() int {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.count
}

// Play clears the paused flag and wakes the decode worker.
func (pl *Playlist) Play() {
	pl.mu.Lock()
	pl.paused = false
	pl.mu.Unlock()
	pl.decodeHeadCond.Signal()
}

// Pause sets the paused flag; the decode worker stops producing new
// buffers until Play is called again.
func (pl *Playlist) Pause() {
	pl.mu.Lock()
	pl.paused = true
	pl.mu.Unlock()
}

// Playing reports whether the playlist is neither paused nor idle.
func (pl *Playlist) Playing() bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return !pl.paused && pl.cursor != nil
}

// Seek moves the decode cursor to item and requests file-level seek to
// seconds, flushing every sink once the worker honors it (spec.md §4.5
// "Seek protocol").
func (pl *Playlist) Seek(item *Item, seconds float64) {
	pl.mu.Lock()
	pl.cursor = item
	pl.cursorPos = seconds
	pl.sentEnd = false
	pl.mu.Unlock()

	item.File.RequestSeek(seconds, true)
	pl.decodeHeadCond.Signal()
}

// SetGain sets the playlist's global linear gain.
func (pl *Playlist) SetGain(g float64) {
	pl.mu.Lock()
	pl.gain = g
	pl.mu.Unlock()
}

// SetItemGainPeak updates item's per-item gain and peak. The next decode
// step naturally picks up the change and rebuilds the graph if it is the
// current cursor (Graph.NeedsRebuild compares (vol, peak) every chunk).
func (pl *Playlist) SetItemGainPeak(item *Item, gain, peak float64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	item.Gain = gain
	if peak > 0 {
		item.Peak = peak
	}
}

// SetFillMode changes the fill mode and wakes the decode worker in case
// the new mode is less restrictive than the old one.
func (pl *Playlist) SetFillMode(mode FillMode) {
	pl.mu.Lock()
	pl.fillMode = mode
	pl.mu.Unlock()
	pl.sinkDrainCond.Signal()
}

// Position returns the decode cursor's current item and seconds-within-item.
func (pl *Playlist) Position() (*Item, float64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	return pl.cursor, pl.cursorPos
}

// AttachSink attaches s to the playlist, regrouping the sink map and
// marking the filter graph for rebuild.
func (pl *Playlist) AttachSink(s *sinkcore.Sink) error {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	if err := s.Attach(pl); err != nil {
		return err
	}
	s.DrainNotify = func() { pl.sinkDrainCond.Signal() }
	pl.sinks = append(pl.sinks, s)
	pl.sinkMap = sinkcore.Build(pl.sinks)
	pl.rebuildGraph = true
	pl.sinkDrainCond.Signal()
	return nil
}

// DetachSink detaches s from the playlist, regrouping the remaining sinks
// and marking the filter graph for rebuild.
func (pl *Playlist) DetachSink(s *sinkcore.Sink) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	s.Detach()
	for i, existing := range pl.sinks {
		if existing == s {
			pl.sinks = append(pl.sinks[:i], pl.sinks[i+1:]...)
			break
		}
	}
	pl.sinkMap = sinkcore.Build(pl.sinks)
	pl.rebuildGraph = true
	pl.sinkDrainCond.Signal()
}

// SetSinkGain updates s's gain under the playlist lock, regroups the sink
// map, and marks the graph for rebuild (spec.md §4.4 set_gain).
func (pl *Playlist) SetSinkGain(s *sinkcore.Sink, gain float64) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	s.Gain = gain
	pl.sinkMap = sinkcore.Build(pl.sinks)
	pl.rebuildGraph = true
}

// run is the decode worker goroutine: the state machine of spec.md §4.5.
func (pl *Playlist) run() {
	defer close(pl.stopped)

	pl.mu.Lock()
	defer pl.mu.Unlock()

	for {
		if pl.aborting {
			return
		}

		if pl.cursor == nil {
			if !pl.sentEnd {
				pl.enqueueSentinelLocked()
				pl.sentEnd = true
			}
			pl.decodeHeadCond.Wait()
			continue
		}
		pl.sentEnd = false

		if pl.paused {
			pl.decodeHeadCond.Wait()
			continue
		}

		if pl.everySinkFullLocked() {
			pl.sinkDrainCond.Wait()
			continue
		}

		item := pl.cursor
		vol := pl.gain * item.Gain
		peak := item.Peak
		fIn := item.File.Format()
		groupCount := 0
		if pl.sinkMap != nil {
			groupCount = len(pl.sinkMap.Groups)
		}
		if pl.rebuildGraph || pl.graph.NeedsRebuild(fIn, vol, peak, groupCount) {
			pl.graph.Rebuild(fIn, vol, peak, groupCount)
			pl.rebuildGraph = false
		}

		ended, err := pl.decodeOneChunkLocked(item, fIn, vol, peak)
		if err != nil && err != io.EOF {
			pl.log.Error("decode step failed", "err", err)
			ended = true
		}
		if ended {
			next := item.next
			pl.cursor = next
			pl.cursorPos = 0
			if next != nil {
				next.File.RequestSeek(0, false)
			}
		}
	}
}

// everySinkFullLocked applies the current fill mode across attached sinks.
func (pl *Playlist) everySinkFullLocked() bool {
	if len(pl.sinks) == 0 {
		return false
	}
	switch pl.fillMode {
	case EverySinkFull:
		for _, s := range pl.sinks {
			if !s.Full() {
				return false
			}
		}
		return true
	default: // AnySinkFull
		for _, s := range pl.sinks {
			if s.Full() {
				return true
			}
		}
		return false
	}
}

func (pl *Playlist) enqueueSentinelLocked() {
	for _, s := range pl.sinks {
		s.EnqueueSentinel()
	}
}

func (pl *Playlist) flushAllSinksLocked() {
	for _, s := range pl.sinks {
		if s.Flush != nil {
			s.Flush()
		}
	}
}

const chunkFrames = 8192

// decodeOneChunkLocked honors any pending seek, reads one chunk of PCM
// from item's file, runs it through the filter graph, and enqueues one tap
// per sink group (spec.md §4.5 decode_one_frame). ended reports whether
// the file reached EOF during this chunk.
func (pl *Playlist) decodeOneChunkLocked(item *Item, fIn audiofmt.Format, vol, peak float64) (ended bool, err error) {
	if pos, flush, pending := item.File.takeSeekRequest(); pending {
		bytesPerFrame := int64(fIn.ChannelLayout.Count()) * 2
		byteOffset := int64(pos*float64(fIn.SampleRate)) * bytesPerFrame
		if _, err := item.File.Seek(byteOffset, io.SeekStart); err != nil {
			return false, fmt.Errorf("seeking: %w", err)
		}
		pl.cursorPos = pos
		if flush {
			pl.flushAllSinksLocked()
		}
	}

	channels := fIn.ChannelLayout.Count()
	if channels < 1 {
		channels = 1
	}
	bytesPerFrame := channels * 2
	raw := make([]byte, chunkFrames*bytesPerFrame)

	n, readErr := io.ReadFull(item.File, raw)
	if n == 0 {
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			return true, nil
		}
		return false, readErr
	}
	raw = raw[:n-n%bytesPerFrame]
	frames := len(raw) / bytesPerFrame

	samples := make([]int16, frames*channels)
	for i := range samples {
		samples[i] = int16(uint16(raw[i*2]) | uint16(raw[i*2+1])<<8)
	}

	if pl.sinkMap != nil {
		requests := make([]filtergraph.TapRequest, len(pl.sinkMap.Groups))
		for i, g := range pl.sinkMap.Groups {
			requests[i] = filtergraph.TapRequest{
				Format:            g.Example.Format,
				DisableResample:   g.Example.DisableResample,
				BufferSampleCount: g.Example.BufferSampleCount,
			}
		}
		taps := filtergraph.Process(samples, fIn, vol, peak, requests)
		for i, g := range pl.sinkMap.Groups {
			tap := taps[i]
			buf := refbuffer.New([][]byte{tap.Data}, tap.Format, tap.Frames, nil)
			buf.Item = item
			buf.Pos = pl.cursorPos
			buf.Size = len(tap.Data)
			for _, member := range g.Members {
				buf.Ref()
				member.Enqueue(buf)
			}
			buf.Unref()
		}
	}

	pl.cursorPos += float64(frames) / float64(fIn.SampleRate)

	if readErr == io.ErrUnexpectedEOF {
		return true, nil
	}
	if readErr == io.EOF {
		return false, nil
	}
	return false, readErr
}
