package media

import "image"

// EventType identifies an element event.
type EventType int

const (
	// EventReady signals that metadata usable for seeking is available.
	EventReady EventType = iota + 1
	// EventSeeked signals that the displayed frame matches the last Seek.
	EventSeeked
	// EventError signals a failure loading or seeking the source.
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventReady:
		return "ready"
	case EventSeeked:
		return "seeked"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is delivered on an element's event channel.
type Event struct {
	Type EventType
	Err  error
}

// Element is a hidden media element that never plays on its own.
type Element interface {
	// SetSource starts loading url. An empty url clears the source and
	// abandons any in-flight work.
	SetSource(url string)
	// Events delivers readiness, seek and error notifications.
	Events() <-chan Event
	// Duration is the source length in seconds, valid after EventReady.
	// It is +Inf for sources without a known length.
	Duration() float64
	// NaturalSize is the intrinsic frame size, valid after EventReady.
	NaturalSize() (width, height int)
	Play() error
	Pause()
	// Seek moves to t seconds. Completion is reported as EventSeeked.
	Seek(t float64)
	// Frame returns the currently displayed frame.
	Frame() (image.Image, error)
}

// ElementFactory creates a fresh Element per opened source.
type ElementFactory func() Element
