// Package mock provides test doubles for the relaycloud interfaces.
//
// Use Source to verify that the caller opens streams with the expected
// StreamConfig. Use Stream to feed controlled StreamEvents and inspect which
// display frames and subscription updates were written.
//
// Example:
//
//	st := &mock.Stream{
//	    EventsCh: make(chan types.StreamEvent, 1),
//	}
//	src := &mock.Source{Stream: st}
//	handle, _ := src.OpenStream(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/lenslate/lenslate/pkg/relaycloud"
	"github.com/lenslate/lenslate/pkg/types"
)

// OpenStreamCall records a single invocation of Source.OpenStream.
type OpenStreamCall struct {
	// Ctx is the context passed to OpenStream.
	Ctx context.Context
	// Cfg is the StreamConfig passed to OpenStream.
	Cfg relaycloud.StreamConfig
}

// Source is a mock implementation of relaycloud.Source.
type Source struct {
	mu sync.Mutex

	// Stream is the Stream returned by OpenStream. If nil, OpenStream
	// returns a new default Stream with a buffered events channel.
	Stream relaycloud.Stream

	// OpenStreamErr, if non-nil, is returned as the error from OpenStream.
	OpenStreamErr error

	// OpenStreamCalls records every call to OpenStream.
	OpenStreamCalls []OpenStreamCall

	// Opened records every Stream handed out, including auto-created
	// defaults.
	Opened []relaycloud.Stream
}

// OpenStream records the call and returns Stream, OpenStreamErr.
func (s *Source) OpenStream(ctx context.Context, cfg relaycloud.StreamConfig) (relaycloud.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenStreamCalls = append(s.OpenStreamCalls, OpenStreamCall{Ctx: ctx, Cfg: cfg})
	if s.OpenStreamErr != nil {
		return nil, s.OpenStreamErr
	}
	st := s.Stream
	if st == nil {
		st = &Stream{
			EventsCh: make(chan types.StreamEvent, 16),
		}
	}
	s.Opened = append(s.Opened, st)
	return st, nil
}

// OpenStreamCallCount returns the number of OpenStream calls. Thread-safe.
func (s *Source) OpenStreamCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.OpenStreamCalls)
}

// LastOpened returns the most recently handed-out Stream, or nil if none.
func (s *Source) LastOpened() relaycloud.Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Opened) == 0 {
		return nil
	}
	return s.Opened[len(s.Opened)-1]
}

// Reset clears all recorded calls. Thread-safe.
func (s *Source) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenStreamCalls = nil
	s.Opened = nil
}

// Ensure Source implements relaycloud.Source at compile time.
var _ relaycloud.Source = (*Source)(nil)

// ShowTextWallCall records a single invocation of Stream.ShowTextWall.
type ShowTextWallCall struct {
	// Text is the text-wall content that was passed to ShowTextWall.
	Text string
	// Opts is the display options value passed alongside.
	Opts types.DisplayOptions
}

// SubscriptionCall records a single invocation of Stream.UpdateSubscription.
type SubscriptionCall struct {
	SourceLocale string
	TargetLocale string
}

// Stream is a mock implementation of relaycloud.Stream.
//
// Callers own EventsCh: pre-populate it with the StreamEvents the consumer
// should receive and close it to simulate an upstream disconnect. Close
// records the call only; it never closes EventsCh.
type Stream struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). Callers must initialise
	// it before handing the Stream to a consumer.
	EventsCh chan types.StreamEvent

	// ShowTextWallErr, if non-nil, is returned by every ShowTextWall call.
	ShowTextWallErr error

	// UpdateSubscriptionErr, if non-nil, is returned by every
	// UpdateSubscription call.
	UpdateSubscriptionErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// ErrVal is returned by Err.
	ErrVal error

	// --- Call records ---

	// ShowTextWallCalls records every call to ShowTextWall in order.
	ShowTextWallCalls []ShowTextWallCall

	// SubscriptionCalls records every call to UpdateSubscription in order.
	SubscriptionCalls []SubscriptionCall

	closeCalls int
}

// Events returns EventsCh. The caller must have initialised EventsCh before
// calling this method.
func (s *Stream) Events() <-chan types.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// UpdateSubscription records the call and returns UpdateSubscriptionErr.
func (s *Stream) UpdateSubscription(sourceLocale, targetLocale string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SubscriptionCalls = append(s.SubscriptionCalls, SubscriptionCall{
		SourceLocale: sourceLocale,
		TargetLocale: targetLocale,
	})
	return s.UpdateSubscriptionErr
}

// ShowTextWall records the call and returns ShowTextWallErr.
func (s *Stream) ShowTextWall(text string, opts types.DisplayOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ShowTextWallCalls = append(s.ShowTextWallCalls, ShowTextWallCall{Text: text, Opts: opts})
	return s.ShowTextWallErr
}

// ShowTextWallCallCount returns the number of ShowTextWall calls.
// Thread-safe.
func (s *Stream) ShowTextWallCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ShowTextWallCalls)
}

// ShownTexts returns the texts passed to ShowTextWall, in call order.
// Thread-safe.
func (s *Stream) ShownTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ShowTextWallCalls))
	for i, c := range s.ShowTextWallCalls {
		out[i] = c.Text
	}
	return out
}

// LastSubscription returns the most recent UpdateSubscription call and
// whether one was made. Thread-safe.
func (s *Stream) LastSubscription() (SubscriptionCall, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.SubscriptionCalls) == 0 {
		return SubscriptionCall{}, false
	}
	return s.SubscriptionCalls[len(s.SubscriptionCalls)-1], true
}

// Err returns ErrVal.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ErrVal
}

// Close records the call and returns CloseErr.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return s.CloseErr
}

// CloseCallCount returns the number of times Close was called. Thread-safe.
func (s *Stream) CloseCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Stream) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ShowTextWallCalls = nil
	s.SubscriptionCalls = nil
	s.closeCalls = 0
}

// Ensure Stream implements relaycloud.Stream at compile time.
var _ relaycloud.Stream = (*Stream)(nil)
