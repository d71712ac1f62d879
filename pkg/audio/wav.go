package audio

import (
	"encoding/binary"
	"errors"
)

// wavHeaderSize is the size of a canonical RIFF/WAVE header without extensions.
const wavHeaderSize = 44

// EncodeWAV prefixes 16-bit little-endian PCM with a canonical WAV header so
// that players can open the clip directly.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	le := binary.LittleEndian

	out := make([]byte, 0, wavHeaderSize+len(pcm))
	out = append(out, "RIFF"...)
	out = le.AppendUint32(out, uint32(36+len(pcm)))
	out = append(out, "WAVEfmt "...)
	out = le.AppendUint32(out, 16)
	out = le.AppendUint16(out, 1) // PCM
	out = le.AppendUint16(out, uint16(channels))
	out = le.AppendUint32(out, uint32(sampleRate))
	out = le.AppendUint32(out, uint32(sampleRate*blockAlign))
	out = le.AppendUint16(out, uint16(blockAlign))
	out = le.AppendUint16(out, bitsPerSample)
	out = append(out, "data"...)
	out = le.AppendUint32(out, uint32(len(pcm)))
	return append(out, pcm...)
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// WAVInfo holds the format metadata extracted from a RIFF/WAVE header.
type WAVInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int
	Channels   int
}

// ParseWAV walks the RIFF chunks in wav and returns the data offset and
// format from the "fmt " sub-chunk. The fmt chunk size varies, so the
// offset is not assumed to be 44.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, errors.New("audio: WAV data too short to be a RIFF file")
	}
	if !IsWAV(wav) {
		return WAVInfo{}, errors.New("audio: missing RIFF/WAVE header")
	}

	var info WAVInfo
	foundFmt := false
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Chunks are word-aligned.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, errors.New("audio: WAV data missing data chunk")
}
