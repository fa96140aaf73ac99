package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"avatarmail/internal/domain"
)

const (
	bytesPerSample = 2  // LINEAR16
	bitsPerSample  = 16 // LINEAR16
	pcmFormatTag   = 1
	wavHeaderSize  = 44
)

// wavFormat is the subset of a WAV fmt chunk the app cares about.
type wavFormat struct {
	SampleRate int
	Channels   int
	DataBytes  int
}

// encodeWAV wraps raw s16le PCM in a canonical 44-byte WAV header.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	byteRate := sampleRate * channels * bytesPerSample

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(pcmFormatTag))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// decodeWAVHeader validates a canonical PCM WAV header. Failures wrap
// domain.ErrDecodeFailure.
func decodeWAVHeader(data []byte) (wavFormat, error) {
	if len(data) < wavHeaderSize {
		return wavFormat{}, fmt.Errorf("%w: %d bytes is shorter than a WAV header", domain.ErrDecodeFailure, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return wavFormat{}, fmt.Errorf("%w: missing RIFF/WAVE magic", domain.ErrDecodeFailure)
	}
	if string(data[12:16]) != "fmt " {
		return wavFormat{}, fmt.Errorf("%w: missing fmt chunk", domain.ErrDecodeFailure)
	}
	if tag := binary.LittleEndian.Uint16(data[20:22]); tag != pcmFormatTag {
		return wavFormat{}, fmt.Errorf("%w: unsupported format tag %d", domain.ErrDecodeFailure, tag)
	}

	format := wavFormat{
		Channels:   int(binary.LittleEndian.Uint16(data[22:24])),
		SampleRate: int(binary.LittleEndian.Uint32(data[24:28])),
	}
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return wavFormat{}, errors.Join(domain.ErrDecodeFailure, fmt.Errorf("invalid channels=%d rate=%d", format.Channels, format.SampleRate))
	}
	if string(data[36:40]) != "data" {
		return wavFormat{}, fmt.Errorf("%w: missing data chunk", domain.ErrDecodeFailure)
	}
	format.DataBytes = int(binary.LittleEndian.Uint32(data[40:44]))
	if format.DataBytes > len(data)-wavHeaderSize {
		return wavFormat{}, fmt.Errorf("%w: truncated data chunk", domain.ErrDecodeFailure)
	}
	return format, nil
}
