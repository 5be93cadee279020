package media

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/heimdex/smartcut/internal/export"
)

// Matroska element IDs, marker bits included.
const (
	idEBML               = 0x1A45DFA3
	idEBMLVersion        = 0x4286
	idEBMLReadVersion    = 0x42F7
	idEBMLMaxIDLength    = 0x42F2
	idEBMLMaxSizeLength  = 0x42F3
	idDocType            = 0x4282
	idDocTypeVersion     = 0x4287
	idDocTypeReadVersion = 0x4285
	idSegment            = 0x18538067
	idInfo               = 0x1549A966
	idTimecodeScale      = 0x2AD7B1
	idDuration           = 0x4489
	idMuxingApp          = 0x4D80
	idWritingApp         = 0x5741
	idTracks             = 0x1654AE6B
	idTrackEntry         = 0xAE
	idTrackNumber        = 0xD7
	idTrackUID           = 0x73C5
	idTrackType          = 0x83
	idCodecID            = 0x86
	idCodecPrivate       = 0x63A2
	idVideo              = 0xE0
	idPixelWidth         = 0xB0
	idPixelHeight        = 0xBA
	idAudio              = 0xE1
	idSamplingFrequency  = 0xB5
	idChannels           = 0x9F
	idCluster            = 0x1F43B675
)

const (
	trackTypeVideo = 1
	trackTypeAudio = 2
	opusPreSkip    = 312
	opusRate       = 48000
)

// emptyWebM returns a zero-duration webm carrying the track headers ffmpeg
// would have written for info, and no clusters.
func emptyWebM(info export.SourceInfo) []byte {
	header := element(idEBML,
		element(idEBMLVersion, ebmlUint(1)),
		element(idEBMLReadVersion, ebmlUint(1)),
		element(idEBMLMaxIDLength, ebmlUint(4)),
		element(idEBMLMaxSizeLength, ebmlUint(8)),
		element(idDocType, []byte("webm")),
		element(idDocTypeVersion, ebmlUint(4)),
		element(idDocTypeReadVersion, ebmlUint(2)),
	)

	segInfo := element(idInfo,
		element(idTimecodeScale, ebmlUint(1_000_000)),
		element(idDuration, ebmlFloat(0)),
		element(idMuxingApp, []byte("smartcut")),
		element(idWritingApp, []byte("smartcut")),
	)

	var tracks [][]byte
	number := uint64(1)
	if info.HasVideo {
		tracks = append(tracks, element(idTrackEntry,
			element(idTrackNumber, ebmlUint(number)),
			element(idTrackUID, ebmlUint(number)),
			element(idTrackType, ebmlUint(trackTypeVideo)),
			element(idCodecID, []byte("V_VP9")),
			element(idVideo,
				element(idPixelWidth, ebmlUint(uint64(info.Width))),
				element(idPixelHeight, ebmlUint(uint64(info.Height))),
			),
		))
		number++
	}
	if info.HasAudio {
		channels := info.Channels
		if channels <= 0 {
			channels = 2
		}
		tracks = append(tracks, element(idTrackEntry,
			element(idTrackNumber, ebmlUint(number)),
			element(idTrackUID, ebmlUint(number)),
			element(idTrackType, ebmlUint(trackTypeAudio)),
			element(idCodecID, []byte("A_OPUS")),
			element(idCodecPrivate, opusHead(channels, info.SampleRate)),
			element(idAudio,
				element(idSamplingFrequency, ebmlFloat(opusRate)),
				element(idChannels, ebmlUint(uint64(channels))),
			),
		))
	}

	segment := element(idSegment, segInfo, element(idTracks, tracks...))
	return append(header, segment...)
}

// opusHead is the identification header libopus puts in CodecPrivate.
func opusHead(channels, inputRate int) []byte {
	b := make([]byte, 19)
	copy(b, "OpusHead")
	b[8] = 1
	b[9] = byte(channels)
	binary.LittleEndian.PutUint16(b[10:], opusPreSkip)
	binary.LittleEndian.PutUint32(b[12:], uint32(inputRate))
	return b
}

func element(id uint32, parts ...[]byte) []byte {
	body := bytes.Join(parts, nil)
	out := ebmlID(id)
	out = append(out, ebmlSize(len(body))...)
	return append(out, body...)
}

func ebmlID(id uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], id)
	i := 0
	for i < 3 && b[i] == 0 {
		i++
	}
	return b[i:]
}

// ebmlSize encodes n as the shortest variable-length integer. The all-ones
// value of each width is reserved for unknown sizes.
func ebmlSize(n int) []byte {
	v := uint64(n)
	for width := 1; width <= 8; width++ {
		if v < (uint64(1)<<(7*width))-1 {
			out := make([]byte, width)
			v |= uint64(1) << (7 * width)
			for i := width - 1; i >= 0; i-- {
				out[i] = byte(v)
				v >>= 8
			}
			return out
		}
	}
	panic("ebml: element too large")
}

func ebmlUint(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	i := 0
	for i < 7 && b[i] == 0 {
		i++
	}
	return b[i:]
}

func ebmlFloat(f float64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	return b[:]
}
