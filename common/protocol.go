// Copyright © incrd contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package common holds the wire model shared between the frame reader and
// the rest of the engine: the inbound request record, the outbound response
// and chunk headers, and the enum-like kinds that tag them.
package common

import (
	"encoding/binary"
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
)

// Magic precedes every inbound RequestCommand on the wire.
const Magic uint32 = 0x494E4352

// MagicLen, RequestCommandLen and ResponseHeaderLen are the fixed byte
// widths of the wire records; the frame reader and block sender depend on
// these rather than re-deriving them from struct layout.
const (
	MagicLen           = 4
	RequestCommandLen  = 8
	ResponseHeaderLen  = 10
	ChunkHeaderLen     = 4
	BlockSize          = 4096
	EndOfStreamFileID  = int16(-1)
	MaxChunkPayloadLen = 31 * BlockSize // 126976
)

var ERequestKind = RequestKind(0)

// RequestKind tags an inbound RequestCommand.
type RequestKind uint8

func (RequestKind) ServingComplete() RequestKind { return RequestKind(0) }
func (RequestKind) BlockMissing() RequestKind    { return RequestKind(1) }
func (RequestKind) Prefetch() RequestKind        { return RequestKind(2) }
func (RequestKind) Destroy() RequestKind         { return RequestKind(3) }

func (rk RequestKind) String() string {
	return enum.StringInt(rk, reflect.TypeOf(rk))
}

var ECompressionKind = CompressionKind(0)

// CompressionKind tags the payload that follows a ResponseHeader.
type CompressionKind uint16

func (CompressionKind) None() CompressionKind { return CompressionKind(0) }
func (CompressionKind) LZ4() CompressionKind  { return CompressionKind(1) }

func (ck CompressionKind) String() string {
	return enum.StringInt(ck, reflect.TypeOf(ck))
}

// RequestCommand is the fixed 8-byte inbound record that follows Magic.
type RequestCommand struct {
	Kind    RequestKind
	FileID  int16
	Payload int32 // block_idx for BlockMissing; unused otherwise
}

// DecodeRequestCommand parses the 8 bytes following Magic. The caller is
// responsible for having consumed Magic itself.
func DecodeRequestCommand(b []byte) RequestCommand {
	_ = b[7] // bounds check hint, matches the fixed RequestCommandLen contract
	return RequestCommand{
		Kind:    RequestKind(binary.BigEndian.Uint16(b[0:2])),
		FileID:  int16(binary.BigEndian.Uint16(b[2:4])),
		Payload: int32(binary.BigEndian.Uint32(b[4:8])),
	}
}

// ResponseHeader precedes each response record's payload on the outbound side.
type ResponseHeader struct {
	FileID      int16
	Compression CompressionKind
	BlockIdx    int32
	BlockSize   uint16
}

// Encode writes the header, big-endian, into a caller-supplied 10-byte buffer.
func (h ResponseHeader) Encode(b []byte) {
	_ = b[9]
	binary.BigEndian.PutUint16(b[0:2], uint16(h.FileID))
	binary.BigEndian.PutUint16(b[2:4], uint16(h.Compression))
	binary.BigEndian.PutUint32(b[4:8], uint32(h.BlockIdx))
	binary.BigEndian.PutUint16(b[8:10], h.BlockSize)
}

// EndOfStreamHeader is the sentinel record signaling "all expected blocks delivered".
func EndOfStreamHeader() ResponseHeader {
	return ResponseHeader{FileID: EndOfStreamFileID, Compression: ECompressionKind.None(), BlockIdx: 0, BlockSize: 0}
}
