package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// wavHeader is the canonical 44-byte RIFF header for PCM data.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

const wavHeaderSize = 44

// EncodeWAV wraps signed 16-bit little-endian PCM in a WAV container.
func EncodeWAV(pcm []byte, format Format) ([]byte, error) {
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", format.SampleRate)
	}
	if format.Channels <= 0 {
		return nil, fmt.Errorf("channel count must be positive, got %d", format.Channels)
	}
	if len(pcm)%format.frameSize() != 0 {
		return nil, fmt.Errorf("pcm length %d is not a whole number of frames", len(pcm))
	}

	channels := uint16(format.Channels)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.bytesPerSecond()),
		BlockAlign:    channels * bytesPerSample,
		BitsPerSample: bytesPerSample * 8,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// DecodeWAV returns the PCM payload and format of a 16-bit PCM WAV file.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < wavHeaderSize {
		return nil, Format{}, fmt.Errorf("wav data too short: need at least %d bytes, got %d", wavHeaderSize, len(data))
	}
	var header wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &header); err != nil {
		return nil, Format{}, fmt.Errorf("read wav header: %w", err)
	}
	switch {
	case string(header.ChunkID[:]) != "RIFF" || string(header.Format[:]) != "WAVE":
		return nil, Format{}, fmt.Errorf("invalid wav file: missing RIFF/WAVE header")
	case string(header.Subchunk1ID[:]) != "fmt " || string(header.Subchunk2ID[:]) != "data":
		return nil, Format{}, fmt.Errorf("invalid wav file: unexpected chunk layout")
	case header.AudioFormat != 1 || header.BitsPerSample != 16:
		return nil, Format{}, fmt.Errorf("unsupported wav encoding: format %d, %d bits", header.AudioFormat, header.BitsPerSample)
	}
	format := Format{SampleRate: int(header.SampleRate), Channels: int(header.NumChannels)}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return nil, Format{}, fmt.Errorf("invalid wav format: %d Hz, %d channels", format.SampleRate, format.Channels)
	}
	// Streaming encoders write a placeholder data size.
	end := len(data)
	if declared := uint64(header.Subchunk2Size); declared < uint64(len(data)-wavHeaderSize) {
		end = wavHeaderSize + int(declared)
	}
	pcm := data[wavHeaderSize:end]
	return pcm[:len(pcm)-len(pcm)%format.frameSize()], format, nil
}
