package testsupport

import (
	"bytes"
	"encoding/binary"
)

// FakeMP3 returns an untagged MPEG frame sequence. payload varies the audio
// bytes so distinct fixtures hash differently.
func FakeMP3(payload byte) []byte {
	frame := []byte{0xff, 0xfb, 0x90, 0x64}
	var buf bytes.Buffer
	for i := 0; i < 64; i++ {
		buf.Write(frame)
		buf.Write(bytes.Repeat([]byte{payload}, 28))
	}
	return buf.Bytes()
}

// MinimalFLAC returns a FLAC stream holding only a STREAMINFO block followed
// by payload-derived frame bytes.
func MinimalFLAC(payload byte) []byte {
	return FLACWithBlocks(payload)
}

// FLACBlock is a raw metadata block for FLACWithBlocks.
type FLACBlock struct {
	Type byte
	Data []byte
}

// FLACWithBlocks builds a FLAC stream with STREAMINFO plus extra metadata
// blocks.
func FLACWithBlocks(payload byte, extra ...FLACBlock) []byte {
	var buf bytes.Buffer
	buf.WriteString("fLaC")
	blocks := append([]FLACBlock{{Type: 0, Data: make([]byte, 34)}}, extra...)
	for i, block := range blocks {
		header := block.Type & 0x7f
		if i == len(blocks)-1 {
			header |= 0x80
		}
		n := len(block.Data)
		buf.Write([]byte{header, byte(n >> 16), byte(n >> 8), byte(n)})
		buf.Write(block.Data)
	}
	buf.Write([]byte{0xff, 0xf8})
	buf.Write(bytes.Repeat([]byte{payload}, 256))
	return buf.Bytes()
}

// PictureBlock encodes a FLAC METADATA_BLOCK_PICTURE.
func PictureBlock(picType uint32, mime string, width, height uint32, data []byte) FLACBlock {
	var buf bytes.Buffer
	put := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	put(picType)
	put(uint32(len(mime)))
	buf.WriteString(mime)
	put(0)
	put(width)
	put(height)
	put(24)
	put(0)
	put(uint32(len(data)))
	buf.Write(data)
	return FLACBlock{Type: 6, Data: buf.Bytes()}
}
