// Package mediatest provides a scriptable fake media.Element for tests.
package mediatest

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"sync"

	"video-thumbnail/internal/media"
)

// Script controls how fake elements behave.
type Script struct {
	Duration float64
	Width    int
	Height   int

	// NeverReady suppresses readiness entirely.
	NeverReady bool
	// LoadErr, when set, is reported instead of readiness.
	LoadErr error
	// ReadySignals is how many readiness events a load emits (default 1).
	ReadySignals int
	// RequirePlayCycle withholds seek completion unless Play and Pause were
	// called since the previous seek.
	RequirePlayCycle bool
	// FailSeek returns a non-nil error to fail the seek to t.
	FailSeek func(t float64) error
	// StallSeeks accepts seeks but never reports them settled.
	StallSeeks bool
	// FrameErr, when set, is returned by Frame.
	FrameErr error
}

// Element is a fake media.Element. It records every call.
type Element struct {
	script Script
	events chan media.Event

	mu       sync.Mutex
	calls    []string
	sources  []string
	clears   int
	played   bool
	paused   bool
	position float64
	frame    image.Image
}

// NewElement creates a fake element following script.
func NewElement(script Script) *Element {
	if script.ReadySignals == 0 {
		script.ReadySignals = 1
	}
	return &Element{
		script: script,
		events: make(chan media.Event, 64),
	}
}

// SetSource implements media.Element.
func (e *Element) SetSource(url string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.sources = append(e.sources, url)
	if url == "" {
		e.calls = append(e.calls, "clear")
		e.clears++
		return
	}
	e.calls = append(e.calls, "source:"+url)

	switch {
	case e.script.NeverReady:
	case e.script.LoadErr != nil:
		e.send(media.Event{Type: media.EventError, Err: e.script.LoadErr})
	default:
		for i := 0; i < e.script.ReadySignals; i++ {
			e.send(media.Event{Type: media.EventReady})
		}
	}
}

// Events implements media.Element.
func (e *Element) Events() <-chan media.Event {
	return e.events
}

// Duration implements media.Element.
func (e *Element) Duration() float64 {
	return e.script.Duration
}

// NaturalSize implements media.Element.
func (e *Element) NaturalSize() (int, int) {
	return e.script.Width, e.script.Height
}

// Play implements media.Element.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "play")
	e.played = true
	return nil
}

// Pause implements media.Element.
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, "pause")
	if e.played {
		e.paused = true
	}
}

// Seek implements media.Element.
func (e *Element) Seek(t float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, "seek:"+strconv.FormatFloat(t, 'f', -1, 64))
	cycled := e.played && e.paused
	e.played, e.paused = false, false

	if e.script.FailSeek != nil {
		if err := e.script.FailSeek(t); err != nil {
			e.send(media.Event{Type: media.EventError, Err: err})
			return
		}
	}
	if e.script.StallSeeks || (e.script.RequirePlayCycle && !cycled) {
		return
	}

	e.position = t
	e.frame = Frame(e.script.Width, e.script.Height, t)
	e.send(media.Event{Type: media.EventSeeked})
}

// Frame implements media.Element.
func (e *Element) Frame() (image.Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.script.FrameErr != nil {
		return nil, e.script.FrameErr
	}
	if e.frame == nil {
		return nil, errors.New("no frame")
	}
	return e.frame, nil
}

// Calls returns the recorded calls in order, e.g. "play", "seek:1.5".
func (e *Element) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

// Sources returns every value passed to SetSource.
func (e *Element) Sources() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sources...)
}

// Clears returns how many times the source was cleared.
func (e *Element) Clears() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clears
}

// Position returns the last settled seek position.
func (e *Element) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Element) send(ev media.Event) {
	select {
	case e.events <- ev:
	default:
		panic(fmt.Sprintf("mediatest: event buffer full, dropping %s", ev.Type))
	}
}

// Frame renders a deterministic w x h frame whose color depends on t.
func Frame(w, h int, t float64) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	shade := uint8(int(t*10) % 256)
	c := color.NRGBA{R: shade, G: 128, B: 255 - shade, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// Factory creates fake elements and keeps them for inspection.
type Factory struct {
	Script Script

	mu       sync.Mutex
	elements []*Element
}

// NewFactory creates a Factory for script.
func NewFactory(script Script) *Factory {
	return &Factory{Script: script}
}

// New satisfies media.ElementFactory.
func (f *Factory) New() media.Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	el := NewElement(f.Script)
	f.elements = append(f.elements, el)
	return el
}

// Created returns how many elements were created, which equals the number
// of Loader.Open calls.
func (f *Factory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.elements)
}

// Elements returns the created elements in creation order.
func (f *Factory) Elements() []*Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Element(nil), f.elements...)
}

// Last returns the most recently created element, or nil.
func (f *Factory) Last() *Element {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.elements) == 0 {
		return nil
	}
	return f.elements[len(f.elements)-1]
}
