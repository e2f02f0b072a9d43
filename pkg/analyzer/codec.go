package analyzer

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/tidewater-io/datavet/pkg/verrors"
)

// Serialized state frame: 4-byte magic, 1-byte version, 2-byte kind tag,
// payload, 4-byte CRC32 (IEEE) over everything before it.
const (
	stateMagic   = "DVST"
	stateVersion = 1

	magicSize   = 4
	versionSize = 1
	kindSize    = 2
	crcSize     = 4
	headerSize  = magicSize + versionSize + kindSize
	minFrame    = headerSize + crcSize
)

// State kind tags. Tags are part of the on-disk format: they are append-only
// and never reused.
const (
	KindSize uint16 = iota + 1
	KindCompleteness
	KindMean
	KindSum
	KindMinMax
	KindStdDev
	KindUniqueness
	KindDistinctness
	KindApproxDistinct
	KindEntropy
	KindHistogram
	KindQuantile
	KindCorrelation
	KindMutualInfo
	KindCompliance
	KindContainment
	KindCustomRatio
	KindDataType
)

// kindNames maps known kind tags to analyzer names for diagnostics. A tag
// missing here is an unknown kind and is rejected on decode.
var kindNames = map[uint16]string{
	KindSize:           "size",
	KindCompleteness:   "completeness",
	KindMean:           "mean",
	KindSum:            "sum",
	KindMinMax:         "minmax",
	KindStdDev:         "stddev",
	KindUniqueness:     "uniqueness",
	KindDistinctness:   "distinctness",
	KindApproxDistinct: "approx_distinct",
	KindEntropy:        "entropy",
	KindHistogram:      "histogram",
	KindQuantile:       "quantile",
	KindCorrelation:    "correlation",
	KindMutualInfo:     "mutual_information",
	KindCompliance:     "compliance",
	KindContainment:    "containment",
	KindCustomRatio:    "custom_ratio",
	KindDataType:       "data_type",
}

// EncodeState frames an analyzer state for persistence.
func EncodeState(a Analyzer, state State) ([]byte, error) {
	payload, err := a.EncodeState(state)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, minFrame+len(payload))
	out = append(out, stateMagic...)
	out = append(out, stateVersion)
	out = binary.BigEndian.AppendUint16(out, a.KindTag())
	out = append(out, payload...)
	out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(out))

	return out, nil
}

// DecodeState verifies and unframes a persisted state for the given
// analyzer. Unknown kind tags are rejected with ErrUnknownStateKind, never
// silently zeroed; a known tag that does not match the analyzer is a
// deserialization error.
func DecodeState(a Analyzer, data []byte) (State, error) {
	if len(data) < minFrame {
		return nil, fmt.Errorf("%w: frame too short (%d bytes)", verrors.ErrStateDeserialize, len(data))
	}

	if string(data[:magicSize]) != stateMagic {
		return nil, fmt.Errorf("%w: bad magic", verrors.ErrStateDeserialize)
	}

	version := data[magicSize]
	if version == 0 || version > stateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", verrors.ErrStateDeserialize, version)
	}

	body := data[:len(data)-crcSize]
	wantCRC := binary.BigEndian.Uint32(data[len(data)-crcSize:])

	if crc32.ChecksumIEEE(body) != wantCRC {
		return nil, fmt.Errorf("%w: checksum mismatch", verrors.ErrStateDeserialize)
	}

	kind := binary.BigEndian.Uint16(data[magicSize+versionSize : headerSize])

	if _, known := kindNames[kind]; !known {
		return nil, fmt.Errorf("%w: tag %d", verrors.ErrUnknownStateKind, kind)
	}

	if kind != a.KindTag() {
		return nil, fmt.Errorf("%w: state kind %s does not match analyzer %s",
			verrors.ErrStateDeserialize, kindNames[kind], a.Descriptor().Name)
	}

	return a.DecodeState(body[headerSize:])
}
