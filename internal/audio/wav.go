// Package audio handles the PCM16 mono WAV container used between the voice
// collaborators.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const DefaultSampleRate = 16000

var ErrNotWAV = errors.New("audio: not a PCM16 WAV stream")

type wavHeader struct {
	RIFF          [4]byte
	ChunkSize     uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAVPCM16LE wraps raw PCM16LE mono samples in a canonical 44-byte WAV header.
func EncodeWAVPCM16LE(pcm []byte, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + uint32(len(pcm)),
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * 2),
		BlockAlign:    2,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// DecodeWAVPCM16LE returns the PCM payload and sample rate of a WAV stream,
// skipping any chunks between fmt and data.
func DecodeWAVPCM16LE(wav []byte) ([]byte, int, error) {
	r := bytes.NewReader(wav)
	var riff struct {
		ID   [4]byte
		Size uint32
		Kind [4]byte
	}
	if err := binary.Read(r, binary.LittleEndian, &riff); err != nil {
		return nil, 0, ErrNotWAV
	}
	if string(riff.ID[:]) != "RIFF" || string(riff.Kind[:]) != "WAVE" {
		return nil, 0, ErrNotWAV
	}

	sampleRate := 0
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(r, binary.LittleEndian, &chunk); err != nil {
			return nil, 0, ErrNotWAV
		}
		switch string(chunk.ID[:]) {
		case "fmt ":
			var f struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if chunk.Size < 16 {
				return nil, 0, ErrNotWAV
			}
			if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
				return nil, 0, ErrNotWAV
			}
			if f.AudioFormat != 1 || f.BitsPerSample != 16 {
				return nil, 0, fmt.Errorf("%w: format %d, %d bits", ErrNotWAV, f.AudioFormat, f.BitsPerSample)
			}
			sampleRate = int(f.SampleRate)
			if _, err := r.Seek(int64(chunk.Size-16), io.SeekCurrent); err != nil {
				return nil, 0, ErrNotWAV
			}
		case "data":
			if sampleRate == 0 {
				return nil, 0, ErrNotWAV
			}
			n := int(chunk.Size)
			if n > r.Len() {
				n = r.Len()
			}
			pcm := make([]byte, n)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return nil, 0, ErrNotWAV
			}
			return pcm, sampleRate, nil
		default:
			if _, err := r.Seek(int64(chunk.Size), io.SeekCurrent); err != nil {
				return nil, 0, ErrNotWAV
			}
		}
	}
}

// IsSilent reports whether every PCM16LE sample stays within threshold.
func IsSilent(pcm []byte, threshold int16) bool {
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if s > threshold || s < -threshold {
			return false
		}
	}
	return true
}

// Silence returns ms milliseconds of zeroed PCM16LE mono samples.
func Silence(ms, sampleRate int) []byte {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if ms <= 0 {
		return nil
	}
	return make([]byte, sampleRate*ms/1000*2)
}
