package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ContentTypeWAV is the media type stored alongside synthesized audio
const ContentTypeWAV = "audio/wav"

var errNotWAV = errors.New("not a RIFF/WAVE buffer")

// WAVInfo describes the format of a RIFF/WAVE buffer
type WAVInfo struct {
	AudioFormat   uint16 // 1 = PCM
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataOffset    int // offset of the first sample byte
	DataSize      int // bytes of sample data actually present
}

// Duration returns the playback length of the sample data
func (w WAVInfo) Duration() time.Duration {
	bytesPerSecond := int(w.SampleRate) * int(w.Channels) * int(w.BitsPerSample) / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(float64(w.DataSize) / float64(bytesPerSecond) * float64(time.Second))
}

// ParseWAV reads the header of a RIFF/WAVE buffer.
// Only the chunks needed to locate the sample data are interpreted.
func ParseWAV(data []byte) (WAVInfo, error) {
	var info WAVInfo
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return info, errNotWAV
	}

	offset := 12
	haveFmt := false
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return info, fmt.Errorf("truncated fmt chunk")
			}
			info.AudioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			info.Channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			info.SampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			info.BitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			if !haveFmt {
				return info, fmt.Errorf("data chunk before fmt chunk")
			}
			info.DataOffset = body
			info.DataSize = size
			if body+size > len(data) || size < 0 {
				// streaming writers often leave the size unset
				info.DataSize = len(data) - body
			}
			return info, nil
		}

		// chunks are word aligned
		offset = body + size + size%2
	}

	return info, fmt.Errorf("no data chunk found")
}

// PCM16Samples decodes the sample data of a 16-bit PCM WAV buffer.
// Multi-channel audio is returned interleaved.
func PCM16Samples(data []byte) ([]int16, error) {
	info, err := ParseWAV(data)
	if err != nil {
		return nil, err
	}
	if info.AudioFormat != 1 || info.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported wav format %d/%d-bit", info.AudioFormat, info.BitsPerSample)
	}

	raw := data[info.DataOffset : info.DataOffset+info.DataSize]
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		// Little-endian 16-bit signed integer
		samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2:]))
	}
	return samples, nil
}
