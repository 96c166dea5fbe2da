package gsf

import (
	"bytes"
	"encoding/binary"
	"time"
)

// PingHeader is the scalar portion of a decoded SWATH_BATHYMETRY_PING
// record: the platform navigation and attitude state in effect for the
// ping, plus the beam count that sizes every BeamArray slice.
type PingHeader struct {
	Timestamp        time.Time
	Longitude        float64
	Latitude         float64
	NumberBeams      uint16
	CentreBeam       uint16
	TideCorrector    float32
	DepthCorrector   float32
	Heading          float32
	Pitch            float32
	Roll             float32
	Heave            float32
	Course           float32
	Speed            float32
	Height           float32
	Separation       float32
	GPSTideCorrector float32
	PingFlags        int16
}

type pingHeaderWire struct {
	Seconds            int32
	NanoSeconds        int32
	Longitude          int32
	Latitude           int32
	NumberBeams        uint16
	CentreBeam         uint16
	PingFlags          int16
	Reserved           int16
	TideCorrector      int16
	DepthCorrector     int32
	Heading            uint16
	Pitch              int16
	Roll               int16
	Heave              int16
	Course             uint16
	Speed              uint16
	Height             int32
	Separation         int32
	GPSTideCorrector   int32
	Spare              int16
}

// BeamArray holds every beam-array subrecord for a single ping, one slice
// per subrecord, each NumberBeams long. Subrecords the ping did not carry
// are left as a nil slice.
type BeamArray struct {
	Z                    []float64
	AcrossTrack          []float64
	AlongTrack           []float64
	TravelTime           []float64
	BeamAngle            []float64
	MeanCalAmplitude     []float64
	MeanRelAmplitude     []float64
	EchoWidth            []float64
	QualityFactor        []float64
	ReceiveHeave         []float64
	DepthError           []float64 // obsolete
	AcrossTrackError     []float64 // obsolete
	AlongTrackError      []float64 // obsolete
	NominalDepth         []float64
	QualityFlags         []float64
	BeamFlags            []uint8
	SignalToNoise        []float64
	BeamAngleForward     []float64
	VerticalError        []float64
	HorizontalError      []float64
	IntensitySeries      [][]float64
	SectorNumber         []float64
	DetectionInfo        []float64
	IncidentBeamAdj      []float64
	SystemCleaning       []float64
	DopplerCorrection    []float64
	SonarVertUncertainty []float64
	SonarHorzUncertainty []float64
	DetectionWindow      []float64
	MeanAbsCoef          []float64
}

// Ping is a fully decoded SWATH_BATHYMETRY_PING record: the scalar header,
// the per-beam arrays, and any sensor-specific metadata block the
// originating device attached.
type Ping struct {
	Header         PingHeader
	Beams          BeamArray
	SensorID       SubRecordID
	SensorMetadata any
}

// CopyPing deep-copies src into a freshly allocated Ping, reallocating every
// per-beam slice to the source's beam count rather than aliasing (§4.4
// "Ping record copy").
func CopyPing(src Ping) Ping {
	dst := Ping{Header: src.Header, SensorID: src.SensorID}
	dst.Beams = copyBeamArray(src.Beams)
	dst.SensorMetadata = src.SensorMetadata
	return dst
}

func copyFloat64Slice(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

func copyBeamArray(src BeamArray) BeamArray {
	dst := BeamArray{
		Z:                    copyFloat64Slice(src.Z),
		AcrossTrack:          copyFloat64Slice(src.AcrossTrack),
		AlongTrack:           copyFloat64Slice(src.AlongTrack),
		TravelTime:           copyFloat64Slice(src.TravelTime),
		BeamAngle:            copyFloat64Slice(src.BeamAngle),
		MeanCalAmplitude:     copyFloat64Slice(src.MeanCalAmplitude),
		MeanRelAmplitude:     copyFloat64Slice(src.MeanRelAmplitude),
		EchoWidth:            copyFloat64Slice(src.EchoWidth),
		QualityFactor:        copyFloat64Slice(src.QualityFactor),
		ReceiveHeave:         copyFloat64Slice(src.ReceiveHeave),
		DepthError:           copyFloat64Slice(src.DepthError),
		AcrossTrackError:     copyFloat64Slice(src.AcrossTrackError),
		AlongTrackError:      copyFloat64Slice(src.AlongTrackError),
		NominalDepth:         copyFloat64Slice(src.NominalDepth),
		QualityFlags:         copyFloat64Slice(src.QualityFlags),
		SignalToNoise:        copyFloat64Slice(src.SignalToNoise),
		BeamAngleForward:     copyFloat64Slice(src.BeamAngleForward),
		VerticalError:        copyFloat64Slice(src.VerticalError),
		HorizontalError:      copyFloat64Slice(src.HorizontalError),
		SectorNumber:         copyFloat64Slice(src.SectorNumber),
		DetectionInfo:        copyFloat64Slice(src.DetectionInfo),
		IncidentBeamAdj:      copyFloat64Slice(src.IncidentBeamAdj),
		SystemCleaning:       copyFloat64Slice(src.SystemCleaning),
		DopplerCorrection:    copyFloat64Slice(src.DopplerCorrection),
		SonarVertUncertainty: copyFloat64Slice(src.SonarVertUncertainty),
		SonarHorzUncertainty: copyFloat64Slice(src.SonarHorzUncertainty),
		DetectionWindow:      copyFloat64Slice(src.DetectionWindow),
		MeanAbsCoef:          copyFloat64Slice(src.MeanAbsCoef),
	}
	if src.BeamFlags != nil {
		dst.BeamFlags = make([]uint8, len(src.BeamFlags))
		copy(dst.BeamFlags, src.BeamFlags)
	}
	if src.IntensitySeries != nil {
		dst.IntensitySeries = make([][]float64, len(src.IntensitySeries))
		for i, s := range src.IntensitySeries {
			dst.IntensitySeries[i] = copyFloat64Slice(s)
		}
	}
	return dst
}

// decodePingHeader decodes the fixed 56 byte ping header that opens every
// SWATH_BATHYMETRY_PING record.
func decodePingHeader(reader *bytes.Reader) (PingHeader, error) {
	var w pingHeaderWire
	if err := binary.Read(reader, binary.BigEndian, &w); err != nil {
		return PingHeader{}, err
	}

	return PingHeader{
		Timestamp:        time.Unix(int64(w.Seconds), int64(w.NanoSeconds)).UTC(),
		Longitude:        float64(w.Longitude) / SCALE_7_F64,
		Latitude:         float64(w.Latitude) / SCALE_7_F64,
		NumberBeams:      w.NumberBeams,
		CentreBeam:       w.CentreBeam,
		PingFlags:        w.PingFlags,
		TideCorrector:    float32(float64(w.TideCorrector) / SCALE_2_F64),
		DepthCorrector:   float32(float64(w.DepthCorrector) / SCALE_2_F64),
		Heading:          float32(float64(w.Heading) / SCALE_2_F64),
		Pitch:            float32(float64(w.Pitch) / SCALE_2_F64),
		Roll:             float32(float64(w.Roll) / SCALE_2_F64),
		Heave:            float32(float64(w.Heave) / SCALE_2_F64),
		Course:           float32(float64(w.Course) / SCALE_2_F64),
		Speed:            float32(float64(w.Speed) / SCALE_2_F64),
		Height:           float32(float64(w.Height) / SCALE_2_F64),
		Separation:       float32(float64(w.Separation) / SCALE_2_F64),
		GPSTideCorrector: float32(float64(w.GPSTideCorrector) / SCALE_2_F64),
	}, nil
}

func encodePingHeader(h PingHeader) []byte {
	buf := new(bytes.Buffer)
	w := pingHeaderWire{
		Seconds:          int32(h.Timestamp.Unix()),
		NanoSeconds:      int32(h.Timestamp.Nanosecond()),
		Longitude:        int32(h.Longitude * SCALE_7_F64),
		Latitude:         int32(h.Latitude * SCALE_7_F64),
		NumberBeams:      h.NumberBeams,
		CentreBeam:       h.CentreBeam,
		PingFlags:        h.PingFlags,
		TideCorrector:    int16(float64(h.TideCorrector) * SCALE_2_F64),
		DepthCorrector:   int32(float64(h.DepthCorrector) * SCALE_2_F64),
		Heading:          uint16(float64(h.Heading) * SCALE_2_F64),
		Pitch:            int16(float64(h.Pitch) * SCALE_2_F64),
		Roll:             int16(float64(h.Roll) * SCALE_2_F64),
		Heave:            int16(float64(h.Heave) * SCALE_2_F64),
		Course:           uint16(float64(h.Course) * SCALE_2_F64),
		Speed:            uint16(float64(h.Speed) * SCALE_2_F64),
		Height:           int32(float64(h.Height) * SCALE_2_F64),
		Separation:       int32(float64(h.Separation) * SCALE_2_F64),
		GPSTideCorrector: int32(float64(h.GPSTideCorrector) * SCALE_2_F64),
	}
	_ = binary.Write(buf, binary.BigEndian, &w)
	return buf.Bytes()
}

// setBeamSlice assigns the decoded beam-array values into the field of dst
// named by the subrecord id.
func setBeamSlice(dst *BeamArray, id SubRecordID, values []float64) {
	switch id {
	case DEPTH:
		dst.Z = values
	case ACROSS_TRACK:
		dst.AcrossTrack = values
	case ALONG_TRACK:
		dst.AlongTrack = values
	case TRAVEL_TIME:
		dst.TravelTime = values
	case BEAM_ANGLE:
		dst.BeamAngle = values
	case MEAN_CAL_AMPLITUDE:
		dst.MeanCalAmplitude = values
	case MEAN_REL_AMPLITUDE:
		dst.MeanRelAmplitude = values
	case ECHO_WIDTH:
		dst.EchoWidth = values
	case QUALITY_FACTOR:
		dst.QualityFactor = values
	case RECEIVE_HEAVE:
		dst.ReceiveHeave = values
	case DEPTH_ERROR:
		dst.DepthError = values
	case ACROSS_TRACK_ERROR:
		dst.AcrossTrackError = values
	case ALONG_TRACK_ERROR:
		dst.AlongTrackError = values
	case NOMINAL_DEPTH:
		dst.NominalDepth = values
	case QUALITY_FLAGS:
		dst.QualityFlags = values
	case SIGNAL_TO_NOISE:
		dst.SignalToNoise = values
	case BEAM_ANGLE_FORWARD:
		dst.BeamAngleForward = values
	case VERTICAL_ERROR:
		dst.VerticalError = values
	case HORIZONTAL_ERROR:
		dst.HorizontalError = values
	case SECTOR_NUMBER:
		dst.SectorNumber = values
	case DETECTION_INFO:
		dst.DetectionInfo = values
	case INCIDENT_BEAM_ADJ:
		dst.IncidentBeamAdj = values
	case SYSTEM_CLEANING:
		dst.SystemCleaning = values
	case DOPPLER_CORRECTION:
		dst.DopplerCorrection = values
	case SONAR_VERT_UNCERTAINTY:
		dst.SonarVertUncertainty = values
	case SONAR_HORZ_UNCERTAINTY:
		dst.SonarHorzUncertainty = values
	case DETECTION_WINDOW:
		dst.DetectionWindow = values
	case MEAN_ABS_COEF:
		dst.MeanAbsCoef = values
	}
}

// getBeamSlice is the read-side counterpart of setBeamSlice, used by the
// write path to pull the physical values back out for re-quantization.
func getBeamSlice(src BeamArray, id SubRecordID) []float64 {
	switch id {
	case DEPTH:
		return src.Z
	case ACROSS_TRACK:
		return src.AcrossTrack
	case ALONG_TRACK:
		return src.AlongTrack
	case TRAVEL_TIME:
		return src.TravelTime
	case BEAM_ANGLE:
		return src.BeamAngle
	case MEAN_CAL_AMPLITUDE:
		return src.MeanCalAmplitude
	case MEAN_REL_AMPLITUDE:
		return src.MeanRelAmplitude
	case ECHO_WIDTH:
		return src.EchoWidth
	case QUALITY_FACTOR:
		return src.QualityFactor
	case RECEIVE_HEAVE:
		return src.ReceiveHeave
	case DEPTH_ERROR:
		return src.DepthError
	case ACROSS_TRACK_ERROR:
		return src.AcrossTrackError
	case ALONG_TRACK_ERROR:
		return src.AlongTrackError
	case NOMINAL_DEPTH:
		return src.NominalDepth
	case QUALITY_FLAGS:
		return src.QualityFlags
	case SIGNAL_TO_NOISE:
		return src.SignalToNoise
	case BEAM_ANGLE_FORWARD:
		return src.BeamAngleForward
	case VERTICAL_ERROR:
		return src.VerticalError
	case HORIZONTAL_ERROR:
		return src.HorizontalError
	case SECTOR_NUMBER:
		return src.SectorNumber
	case DETECTION_INFO:
		return src.DetectionInfo
	case INCIDENT_BEAM_ADJ:
		return src.IncidentBeamAdj
	case SYSTEM_CLEANING:
		return src.SystemCleaning
	case DOPPLER_CORRECTION:
		return src.DopplerCorrection
	case SONAR_VERT_UNCERTAINTY:
		return src.SonarVertUncertainty
	case SONAR_HORZ_UNCERTAINTY:
		return src.SonarHorzUncertainty
	case DETECTION_WINDOW:
		return src.DetectionWindow
	case MEAN_ABS_COEF:
		return src.MeanAbsCoef
	default:
		return nil
	}
}

// DecodePing decodes a full SWATH_BATHYMETRY_PING record body: the scalar
// header, the SCALE_FACTORS subrecord (when present, updating table), every
// beam-array subrecord, the beam flags array, and any trailing
// sensor-specific metadata block.
func DecodePing(buffer []byte, table *ScaleFactorTable) (Ping, error) {
	reader := bytes.NewReader(buffer)

	header, err := decodePingHeader(reader)
	if err != nil {
		return Ping{}, err
	}

	ping := Ping{Header: header}

	for reader.Len() > 0 {
		var sub struct {
			SubrecordID uint32
		}
		if err := binary.Read(reader, binary.BigEndian, &sub); err != nil {
			break
		}
		id := SubRecordID(sub.SubrecordID >> 24)
		size := sub.SubrecordID & 0x00FFFFFF

		if int(size) > reader.Len() {
			return Ping{}, ErrRecordSize
		}
		payload := make([]byte, size)
		if _, err := reader.Read(payload); err != nil {
			return Ping{}, err
		}
		payloadReader := bytes.NewReader(payload)

		switch {
		case id == SCALE_FACTORS:
			if err := DecodeScaleFactors(payloadReader, table); err != nil {
				return Ping{}, err
			}
		case id == BEAM_FLAGS:
			flags, err := DecodeBeamFlagsArray(payloadReader, header.NumberBeams)
			if err != nil {
				return Ping{}, err
			}
			ping.Beams.BeamFlags = flags
		case id == INTENSITY_SERIES:
			// Per-beam variable-length time series, not a fixed-width scaled
			// array like the other beam subrecords; its bytes are skipped
			// and neither decoded into BeamArray nor kept.
			ping.Beams.IntensitySeries = nil
		case id >= 1 && id <= MAX_BEAM_ARRAY_SUBRECORD_ID:
			sf, ok := table.Get(id)
			if !ok {
				return Ping{}, ErrUnrecognizedRecordID
			}
			values := decodeBeamArray(payloadReader, header.NumberBeams, sf)
			setBeamSlice(&ping.Beams, id, values)
		default:
			ping.SensorID = id
			ping.SensorMetadata = decodeSensorMetadata(id, payloadReader)
		}
	}

	return ping, nil
}

// EncodePing is the write-path inverse of DecodePing. It writes the scalar
// header, a SCALE_FACTORS subrecord reflecting table, every non-nil beam
// array quantized per its scale factor, and the beam flags array.
func EncodePing(ping Ping, table *ScaleFactorTable) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(encodePingHeader(ping.Header))

	sfBody := EncodeScaleFactors(table)
	_ = binary.Write(buf, binary.BigEndian, uint32(SCALE_FACTORS)<<24|uint32(len(sfBody)))
	buf.Write(sfBody)

	for _, id := range beamArraySubrecordIDs {
		values := getBeamSlice(ping.Beams, id)
		if values == nil {
			continue
		}
		sf, ok := table.Get(id)
		if !ok {
			return nil, ErrIllegalScaleFactorMultiplier
		}
		arrBuf := new(bytes.Buffer)
		if err := encodeBeamArray(arrBuf, values, sf); err != nil {
			return nil, err
		}
		_ = binary.Write(buf, binary.BigEndian, uint32(id)<<24|uint32(arrBuf.Len()))
		buf.Write(arrBuf.Bytes())
	}

	if ping.Beams.BeamFlags != nil {
		_ = binary.Write(buf, binary.BigEndian, uint32(BEAM_FLAGS)<<24|uint32(len(ping.Beams.BeamFlags)))
		buf.Write(ping.Beams.BeamFlags)
	}

	if ping.SensorMetadata != nil {
		body := encodeSensorMetadata(ping.SensorMetadata)
		_ = binary.Write(buf, binary.BigEndian, uint32(ping.SensorID)<<24|uint32(len(body)))
		buf.Write(body)
	}

	return buf.Bytes(), nil
}

// DecodeBeamFlagsArray decodes the beam flags array subrecord: one byte per
// beam indicating whether the beam carries usable data.
func DecodeBeamFlagsArray(reader *bytes.Reader, nbeams uint16) ([]uint8, error) {
	data := make([]uint8, nbeams)
	if err := binary.Read(reader, binary.BigEndian, &data); err != nil {
		return nil, err
	}
	return data, nil
}
