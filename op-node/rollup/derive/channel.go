package derive

import (
	"errors"
	"fmt"

	"github.com/ethereum-optimism/optimism/op-service/eth"
	"github.com/ethereum-optimism/optimism/op-service/safemath"
)

// ChannelError classifies why a frame was rejected by a Channel. Rejection
// is never fatal to the assembler: the offending frame is dropped and
// ingestion continues (see op-node/rollup/derive's channel bank handling).
type ChannelError struct {
	kind    channelErrorKind
	frameNo uint16
}

type channelErrorKind int

const (
	FrameIDMismatch channelErrorKind = iota
	ChannelClosedErr
	FrameNumberExists
	FrameBeyondEndFrame
)

func (e *ChannelError) Error() string {
	switch e.kind {
	case FrameIDMismatch:
		return "frame id does not match channel id"
	case ChannelClosedErr:
		return "channel is closed"
	case FrameNumberExists:
		return fmt.Sprintf("frame number %d already exists", e.frameNo)
	case FrameBeyondEndFrame:
		return fmt.Sprintf("frame number %d is beyond end frame", e.frameNo)
	default:
		return "unknown channel error"
	}
}

// Is supports errors.Is comparisons against the exported sentinel kinds
// below, without exposing the unexported kind field.
func (e *ChannelError) Is(target error) bool {
	other, ok := target.(*ChannelError)
	return ok && other.kind == e.kind
}

var (
	ErrFrameIDMismatch      = &ChannelError{kind: FrameIDMismatch}
	ErrChannelClosed        = &ChannelError{kind: ChannelClosedErr}
	ErrFrameNumberExists    = &ChannelError{kind: FrameNumberExists}
	ErrFrameBeyondEndFrame  = &ChannelError{kind: FrameBeyondEndFrame}
)

// Channel aggregates the frames belonging to a single ChannelID, ingested
// in arbitrary order, until a closing frame defines the channel's length
// and every intervening frame has arrived.
type Channel struct {
	id ChannelID

	// openBlock is the L1 block of the first frame ingested.
	openBlock eth.BlockInfo

	estimatedSize uint64

	closed bool

	// highestFrameNumber is the largest frame number ingested so far,
	// clamped to lastFrameNumber once the channel is closed.
	highestFrameNumber uint16

	// lastFrameNumber is only meaningful once closed: it's the number of
	// the frame with IsLast set.
	lastFrameNumber uint16

	inputs map[uint16]Frame

	highestL1InclusionBlock eth.BlockInfo
}

// NewChannel creates an empty Channel for id, opened at openBlock.
func NewChannel(id ChannelID, openBlock eth.BlockInfo) *Channel {
	return &Channel{
		id:        id,
		openBlock: openBlock,
		inputs:    make(map[uint16]Frame),
	}
}

func (ch *Channel) ID() ChannelID { return ch.id }

func (ch *Channel) OpenBlockNumber() uint64 { return ch.openBlock.Number }

func (ch *Channel) Size() uint64 { return ch.estimatedSize }

func (ch *Channel) Len() int { return len(ch.inputs) }

func (ch *Channel) IsEmpty() bool { return len(ch.inputs) == 0 }

func (ch *Channel) HighestL1InclusionBlock() eth.BlockInfo { return ch.highestL1InclusionBlock }

// AddFrame buffers frame, received at l1InclusionBlock, applying the
// rejection policy in order: id mismatch, admitting a closing frame to an
// already-closed channel, duplicate frame number, then (once closed) a
// frame number at or past the end. On success, a closing frame prunes any
// buffered frame beyond the new end and clamps highestFrameNumber.
func (ch *Channel) AddFrame(frame Frame, l1InclusionBlock eth.BlockInfo) error {
	if frame.ID != ch.id {
		return ErrFrameIDMismatch
	}
	if frame.IsLast && ch.closed {
		return ErrChannelClosed
	}
	if _, exists := ch.inputs[frame.Number]; exists {
		return &ChannelError{kind: FrameNumberExists, frameNo: frame.Number}
	}
	if ch.closed && frame.Number >= ch.lastFrameNumber {
		return &ChannelError{kind: FrameBeyondEndFrame, frameNo: frame.Number}
	}

	if frame.IsLast {
		ch.lastFrameNumber = frame.Number
		ch.closed = true

		if ch.lastFrameNumber < ch.highestFrameNumber {
			for number, buffered := range ch.inputs {
				if number >= ch.lastFrameNumber {
					ch.estimatedSize -= buffered.Size()
					delete(ch.inputs, number)
				}
			}
			ch.highestFrameNumber = ch.lastFrameNumber
		}
	}

	if frame.Number > ch.highestFrameNumber {
		ch.highestFrameNumber = frame.Number
	}

	if ch.highestL1InclusionBlock.Number < l1InclusionBlock.Number {
		ch.highestL1InclusionBlock = l1InclusionBlock
	}

	ch.estimatedSize = safemath.SaturatingAdd(ch.estimatedSize, frame.Size())
	ch.inputs[frame.Number] = frame
	return nil
}

// IsReady reports whether the channel is closed and every frame number in
// [0, lastFrameNumber] has been buffered.
func (ch *Channel) IsReady() bool {
	if !ch.closed {
		return false
	}
	want := int(ch.lastFrameNumber) + 1
	if len(ch.inputs) != want {
		return false
	}
	for i := 0; i <= int(ch.lastFrameNumber); i++ {
		if _, ok := ch.inputs[uint16(i)]; !ok {
			return false
		}
	}
	return true
}

// ErrMissingFrame is returned by FrameData when a frame in the required
// range has not yet been buffered.
var ErrMissingFrame = errors.New("channel is missing a frame")

// FrameData concatenates the channel's frames, numbers 0 through
// lastFrameNumber in order, returning ErrMissingFrame if any are absent
// (including frame 0). It does not require the channel to be closed.
func (ch *Channel) FrameData() ([]byte, error) {
	if ch.IsEmpty() {
		return nil, ErrMissingFrame
	}
	out := make([]byte, 0, ch.estimatedSize)
	for i := 0; i <= int(ch.lastFrameNumber); i++ {
		frame, ok := ch.inputs[uint16(i)]
		if !ok {
			return nil, ErrMissingFrame
		}
		out = append(out, frame.Data...)
	}
	return out, nil
}
