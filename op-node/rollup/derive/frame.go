package derive

import (
	"encoding/binary"
	"fmt"
)

// ChannelIDLength is the length in bytes of a ChannelID.
const ChannelIDLength = 16

// ChannelID is an opaque identifier shared by every frame of a channel.
type ChannelID [ChannelIDLength]byte

func (id ChannelID) String() string {
	return fmt.Sprintf("%x", id[:])
}

// frameOverhead is the fixed per-frame accounting overhead folded into
// a Channel's estimated size, covering the id/number/length/flag wire fields
// plus bank bookkeeping, matching op-node's channel bank sizing constant.
const frameOverhead = 200

// Frame is a fragment of a channel, as produced by L1 batch-data parsing.
// Frames are immutable once emitted and may arrive out of order.
//
// Wire format: id(16) ++ number(2, big-endian) ++ data_len(4, big-endian)
// ++ data ++ is_last(1).
type Frame struct {
	ID     ChannelID
	Number uint16
	Data   []byte
	IsLast bool
}

// Size returns the frame's contribution to a channel's estimated memory
// footprint: its payload plus fixed overhead.
func (f Frame) Size() uint64 {
	return uint64(len(f.Data)) + frameOverhead
}

// MarshalBinary encodes the frame using the wire format named above.
func (f Frame) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, ChannelIDLength+2+4+len(f.Data)+1)
	out = append(out, f.ID[:]...)
	out = binary.BigEndian.AppendUint16(out, f.Number)
	out = binary.BigEndian.AppendUint32(out, uint32(len(f.Data)))
	out = append(out, f.Data...)
	if f.IsLast {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out, nil
}

// UnmarshalBinary decodes a frame from the wire format named above.
func (f *Frame) UnmarshalBinary(data []byte) error {
	const minLen = ChannelIDLength + 2 + 4 + 1
	if len(data) < minLen {
		return fmt.Errorf("frame too short: have %d, need at least %d", len(data), minLen)
	}
	var id ChannelID
	copy(id[:], data[:ChannelIDLength])
	rest := data[ChannelIDLength:]
	number := binary.BigEndian.Uint16(rest[:2])
	dataLen := binary.BigEndian.Uint32(rest[2:6])
	rest = rest[6:]
	if uint32(len(rest)) < dataLen+1 {
		return fmt.Errorf("frame data truncated: have %d bytes, want %d data bytes + flag", len(rest), dataLen)
	}
	payload := make([]byte, dataLen)
	copy(payload, rest[:dataLen])
	isLast := rest[dataLen] == 1

	f.ID = id
	f.Number = number
	f.Data = payload
	f.IsLast = isLast
	return nil
}
