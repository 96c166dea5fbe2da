package gsf

import (
	"bytes"
	"encoding/binary"
	"math"
)

// MIN_SF_MULT / MAX_SF_MULT bound the multiplier accepted by LoadScaleFactor
// (§4.4 "Scale-factor management").
const (
	MIN_SF_MULT float64 = 0.01
	MAX_SF_MULT float64 = 1_000_000.0
)

// ScaleFactor is the per-beam-array (compression_flag, multiplier, offset)
// triple described in §3 "Scale-factor semantics". CompressionFlag's low
// nibble carries a type tag (a value of 1 marks the on-wire integers as
// signed, see signed) and its high nibble carries the field-width tag (FIELD_SIZE_*).
type ScaleFactor struct {
	CompressionFlag uint8
	Multiplier      float64
	Offset          float64
}

// fieldWidth returns the on-wire byte width selected by the high nibble of
// CompressionFlag, defaulting to two bytes as gsf.c does.
func (sf ScaleFactor) fieldWidth() uint32 {
	switch sf.CompressionFlag & 0xF0 {
	case byte(FIELD_SIZE_ONE):
		return BYTES_PER_BEAM_ONE
	case byte(FIELD_SIZE_FOUR):
		return BYTES_PER_BEAM_FOUR
	default:
		return BYTES_PER_BEAM_TWO
	}
}

// signed reports whether the on-wire integer for this subrecord is signed:
// true exactly when the low nibble of CompressionFlag is 1. The subrecord
// id is not consulted.
func (sf ScaleFactor) signed() bool {
	return sf.CompressionFlag&0x0F == 1
}

// ScaleFactorTable holds one ScaleFactor per beam-array subrecord id for a
// single open GSF file handle (§3 "GSF file state").
type ScaleFactorTable struct {
	entries map[SubRecordID]ScaleFactor
	// count of subrecord ids that have been explicitly set at least once;
	// buildIndex compares it before and after a ping decode to spot pings
	// that introduced a new id. EncodeScaleFactors sizes its output from
	// the entries themselves.
	count int
}

// NewScaleFactorTable returns an empty table sized for every beam-array
// subrecord id.
func NewScaleFactorTable() *ScaleFactorTable {
	return &ScaleFactorTable{entries: make(map[SubRecordID]ScaleFactor, len(beamArraySubrecordIDs))}
}

// Get returns the scale factor registered for id, and whether one has been
// loaded.
func (t *ScaleFactorTable) Get(id SubRecordID) (ScaleFactor, bool) {
	sf, ok := t.entries[id]
	return sf, ok
}

// LoadScaleFactor converts precision into a multiplier, validates it lies
// within [MIN_SF_MULT, MAX_SF_MULT], and stores the (compression_flag,
// multiplier, offset) triple for subrecordID (§4.4).
func (t *ScaleFactorTable) LoadScaleFactor(subrecordID SubRecordID, compressionFlag uint8, precision, offset float64) error {
	if precision == 0 {
		return ErrCannotRepresentPrecision
	}

	multiplier := math.Round(1.0 / precision)
	if multiplier < MIN_SF_MULT || multiplier > MAX_SF_MULT {
		return ErrIllegalScaleFactorMultiplier
	}

	if _, exists := t.entries[subrecordID]; !exists {
		t.count++
	}

	t.entries[subrecordID] = ScaleFactor{
		CompressionFlag: compressionFlag,
		Multiplier:      multiplier,
		Offset:          offset,
	}

	return nil
}

// Depth-layer auto-offset thresholds, preserved literally per Design Notes
// §9 ("do not attempt to re-derive them").
const (
	autoOffsetUpThreshold   = 0.70 // 70% of layer interval
	autoOffsetDownThreshold = 0.10 // 10% of layer interval
	autoOffsetHysteresis    = 30.0 // metres
	autoOffsetPinThreshold  = 400.0 // metres
	autoOffsetPositiveCap   = 20.0 // metres
)

// depthLayer tracks the running state of the auto-offset heuristic across a
// sequence of pings for one subrecord id, so the DC offset selected for
// each ping's scale factor keeps the unsigned on-wire integer from
// overflowing as depth and tide correction drift over a survey.
type depthLayer struct {
	layerInterval float64
	current       float64
}

// LoadScaleFactorAutoOffset chooses the DC offset for subrecordID using the
// hysteretic depth-layer heuristic (§4.4 "load_scale_factor_auto_offset"):
// the layer changes by whole multiples of layerInterval when the
// accumulated tide+depth corrector crosses 70% (moving away from zero) or
// 10% (returning toward zero) of the interval, and pins to zero whenever
// the corrector's magnitude is smaller than one layer and the maximum
// observed depth exceeds autoOffsetPinThreshold.
func (t *ScaleFactorTable) LoadScaleFactorAutoOffset(
	layers map[SubRecordID]*depthLayer,
	subrecordID SubRecordID,
	compressionFlag uint8,
	precision float64,
	corrector float64,
	maxDepth float64,
	layerInterval float64,
) error {
	layer, ok := layers[subrecordID]
	if !ok {
		layer = &depthLayer{layerInterval: layerInterval}
		layers[subrecordID] = layer
	}

	abs := math.Abs(corrector)
	up := autoOffsetUpThreshold * layerInterval
	down := autoOffsetDownThreshold * layerInterval

	switch {
	case abs < layer.layerInterval && maxDepth > autoOffsetPinThreshold:
		layer.current = 0
	case corrector > 0 && abs-layer.current >= up:
		layer.current += layerInterval
	case corrector < 0 && layer.current-abs >= up:
		layer.current -= layerInterval
	case abs < down:
		layer.current = 0
	}

	offset := layer.current + autoOffsetHysteresis
	if offset > autoOffsetPositiveCap && corrector >= 0 {
		offset = autoOffsetPositiveCap
	}

	return t.LoadScaleFactor(subrecordID, compressionFlag, precision, offset)
}

// GetArrayMinMax returns the representable physical range of subrecordID
// given its currently loaded scale factor, by mapping the underlying
// on-wire integer's min/max back through multiplier and offset (§4.4).
func (t *ScaleFactorTable) GetArrayMinMax(subrecordID SubRecordID) (min, max float64, err error) {
	sf, ok := t.entries[subrecordID]
	if !ok {
		return 0, 0, ErrIllegalScaleFactorMultiplier
	}

	width := sf.fieldWidth()
	var lo, hi float64
	if sf.signed() {
		switch width {
		case BYTES_PER_BEAM_ONE:
			lo, hi = math.MinInt8, math.MaxInt8
		case BYTES_PER_BEAM_FOUR:
			lo, hi = math.MinInt32, math.MaxInt32
		default:
			lo, hi = math.MinInt16, math.MaxInt16
		}
	} else {
		switch width {
		case BYTES_PER_BEAM_ONE:
			lo, hi = 0, math.MaxUint8
		case BYTES_PER_BEAM_FOUR:
			lo, hi = 0, math.MaxUint32
		default:
			lo, hi = 0, math.MaxUint16
		}
	}

	min = lo/sf.Multiplier - sf.Offset
	max = hi/sf.Multiplier - sf.Offset
	return min, max, nil
}

// applyScaleFactor inverts the on-wire quantization: unscaled = value /
// scale - offset, matching gsf-go's record.go exactly.
func applyScaleFactor(value float64, sf ScaleFactor) float64 {
	return value/sf.Multiplier - sf.Offset
}

// quantize applies the forward quantization used when writing a beam
// array: q = round((v + offset) * multiplier) (§3).
func quantize(value float64, sf ScaleFactor) float64 {
	return math.Round((value + sf.Offset) * sf.Multiplier)
}

// decodeBeamArray decodes a beam-array subrecord of the given byte width
// and signedness, returning physical values obtained by inverting the
// scale factor. This mirrors SubRecord.DecodeSubRecArray in gsf-go's
// record.go, generalized to one function over {1,2,4} byte widths.
func decodeBeamArray(reader *bytes.Reader, numberBeams uint16, sf ScaleFactor) []float64 {
	scaled := make([]float64, numberBeams)
	width := sf.fieldWidth()

	switch {
	case sf.signed() && width == BYTES_PER_BEAM_ONE:
		data := make([]int8, numberBeams)
		_ = binary.Read(reader, binary.BigEndian, &data)
		for k, v := range data {
			scaled[k] = applyScaleFactor(float64(v), sf)
		}
	case sf.signed() && width == BYTES_PER_BEAM_FOUR:
		data := make([]uint32, numberBeams)
		_ = binary.Read(reader, binary.BigEndian, &data)
		for k, v := range data {
			scaled[k] = applyScaleFactor(float64(int32(v)), sf)
		}
	case sf.signed():
		data := make([]uint16, numberBeams)
		_ = binary.Read(reader, binary.BigEndian, &data)
		for k, v := range data {
			scaled[k] = applyScaleFactor(float64(int16(v)), sf)
		}
	case width == BYTES_PER_BEAM_ONE:
		data := make([]uint8, numberBeams)
		_ = binary.Read(reader, binary.BigEndian, &data)
		for k, v := range data {
			scaled[k] = applyScaleFactor(float64(v), sf)
		}
	case width == BYTES_PER_BEAM_FOUR:
		data := make([]uint32, numberBeams)
		_ = binary.Read(reader, binary.BigEndian, &data)
		for k, v := range data {
			scaled[k] = applyScaleFactor(float64(v), sf)
		}
	default:
		data := make([]uint16, numberBeams)
		_ = binary.Read(reader, binary.BigEndian, &data)
		for k, v := range data {
			scaled[k] = applyScaleFactor(float64(v), sf)
		}
	}

	return scaled
}

// encodeBeamArray is the write-path inverse of decodeBeamArray: it
// quantizes each physical value and appends the on-wire integer bytes to
// buf.
func encodeBeamArray(buf *bytes.Buffer, values []float64, sf ScaleFactor) error {
	width := sf.fieldWidth()

	switch {
	case sf.signed() && width == BYTES_PER_BEAM_ONE:
		data := make([]int8, len(values))
		for k, v := range values {
			data[k] = int8(quantize(v, sf))
		}
		return binary.Write(buf, binary.BigEndian, data)
	case sf.signed() && width == BYTES_PER_BEAM_FOUR:
		data := make([]int32, len(values))
		for k, v := range values {
			data[k] = int32(quantize(v, sf))
		}
		return binary.Write(buf, binary.BigEndian, data)
	case sf.signed():
		data := make([]int16, len(values))
		for k, v := range values {
			data[k] = int16(quantize(v, sf))
		}
		return binary.Write(buf, binary.BigEndian, data)
	case width == BYTES_PER_BEAM_ONE:
		data := make([]uint8, len(values))
		for k, v := range values {
			data[k] = uint8(quantize(v, sf))
		}
		return binary.Write(buf, binary.BigEndian, data)
	case width == BYTES_PER_BEAM_FOUR:
		data := make([]uint32, len(values))
		for k, v := range values {
			data[k] = uint32(quantize(v, sf))
		}
		return binary.Write(buf, binary.BigEndian, data)
	default:
		data := make([]uint16, len(values))
		for k, v := range values {
			data[k] = uint16(quantize(v, sf))
		}
		return binary.Write(buf, binary.BigEndian, data)
	}
}

// DecodeScaleFactors decodes a SCALE_FACTORS subrecord, populating table
// with every (subrecord_id -> ScaleFactor) entry it contains. Each entry is
// packed into 3 words: word0 = id<<24 | comp_flag<<16, word1 = multiplier,
// word2 = signed offset (gsf.c's gsfLoadScaleFactor on-wire layout).
func DecodeScaleFactors(reader *bytes.Reader, table *ScaleFactorTable) error {
	var count uint32
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		var raw struct {
			Word0      uint32
			Multiplier uint32
			Offset     int32
		}
		if err := binary.Read(reader, binary.BigEndian, &raw); err != nil {
			return err
		}

		id := SubRecordID(raw.Word0 >> 24)
		compression := uint8((raw.Word0 & 0x00FF0000) >> 16)
		sf := ScaleFactor{
			CompressionFlag: compression,
			Multiplier:      float64(raw.Multiplier),
			Offset:          float64(raw.Offset),
		}
		if _, exists := table.entries[id]; !exists {
			table.count++
		}
		table.entries[id] = sf
	}

	return nil
}

// EncodeScaleFactors is the write-path inverse of DecodeScaleFactors.
func EncodeScaleFactors(table *ScaleFactorTable) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.BigEndian, uint32(len(table.entries)))

	for id, sf := range table.entries {
		raw := struct {
			Word0      uint32
			Multiplier uint32
			Offset     int32
		}{
			Word0:      uint32(id)<<24 | uint32(sf.CompressionFlag)<<16,
			Multiplier: uint32(sf.Multiplier),
			Offset:     int32(sf.Offset),
		}
		_ = binary.Write(buf, binary.BigEndian, &raw)
	}

	return buf.Bytes()
}
