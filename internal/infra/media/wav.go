package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// wavHeader is the canonical 44-byte header for mono 16-bit PCM.
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

// EncodeWAV encodes mono PCM-16 samples as a WAV file.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("writing samples: %w", err)
	}

	return buf.Bytes(), nil
}

// SilenceWriter writes a short silent clip in place of a failed synthesis.
type SilenceWriter struct {
	sampleRate int
	duration   time.Duration
}

func NewSilenceWriter(sampleRate int, duration time.Duration) *SilenceWriter {
	if sampleRate == 0 {
		sampleRate = 22050
	}
	if duration == 0 {
		duration = time.Second
	}
	return &SilenceWriter{sampleRate: sampleRate, duration: duration}
}

func (s *SilenceWriter) WriteFallback(path string) error {
	n := int(s.duration.Seconds() * float64(s.sampleRate))
	data, err := EncodeWAV(make([]int16, n), s.sampleRate)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing silence: %w", err)
	}
	return nil
}
