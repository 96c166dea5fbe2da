package gsf

import (
	"bytes"
	"encoding/binary"
	"time"
)

// EM4Sector carries the per-transmit-sector fields of an EM4-family
// sensor-specific subrecord (one entry per sector fired on this ping).
type EM4Sector struct {
	TiltAngle       float32
	FocusRange      float32
	SignalLength    float64
	TransmitDelay   float64
	CenterFrequency float64
	MeanAbsorption  float32
	WaveformID      uint8
	SectorNumber    uint8
	SignalBandwidth float64
}

// EM4Metadata is the sensor-specific subrecord attached to a ping from the
// EM710/EM302/EM122/EM2040 family (and their EM3000/EM3002 relatives, which
// share the same wire layout). It supplements the beam-array subrecords
// common to every ping with the installation and runtime parameters unique
// to Kongsberg EM sonars.
type EM4Metadata struct {
	ModelNumber            int16
	PingCounter            int16
	SerialNumber           int16
	SurfaceVelocity        float32
	TransducerDepth        float64
	ValidDetections        int16
	SamplingFrequency      float64
	DopplerCorrectionScale int32
	VehicleDepth           float32
	Sectors                []EM4Sector

	RunTimeModelNumber            int16
	RunTimeDatagramTime           time.Time
	RunTimePingCounter            int16
	RunTimeSerialNumber           int16
	RunTimeOperatorStationStatus  uint8
	RunTimeProcessingUnitStatus   uint8
	RunTimeBspStatus              uint8
	RunTimeHeadTransceiverStatus  uint8
	RunTimeMode                   uint8
	RunTimeFilterID               uint8
	RunTimeMinDepth               float32
	RunTimeMaxDepth               float32
	RunTimeAbsorption             float32
	RunTimeTransmitPulseLength    float32
	RunTimeTransmitBeamWidth      float32
	RunTimeTransmitPowerReduction uint8
	RunTimeReceiveBeamWidth       float32
	RunTimeReceiveBandwidth       float32
	RunTimeReceiveFixedGain       uint8
	RunTimeTvgCrossOverAngle      uint8
	RunTimeSsvSource              uint8
	RunTimeMaxPortSwathWidth      int16
	RunTimeBeamSpacing            uint8
	RunTimeMaxPortCoverage        uint8
	RunTimeStabilization          uint8
	RunTimeMaxStbdCoverage        uint8
	RunTimeMaxStbdSwathWidth      int16
	RunTimeTransmitAlongTilt      float32
	RunTimeFilterID2              uint8

	ProcessorUnitCPULoad              uint8
	ProcessorUnitSensorStatus         uint16
	ProcessorUnitAchievedPortCoverage uint8
	ProcessorUnitAchievedStbdCoverage uint8
	ProcessorUnitYawStabilization     float32
}

// EM3Metadata is the fallback sensor-specific block for the historical EM3
// family (EM120/EM300/EM1002/EM3000-era singlehead units predating the EM4
// wire layout). It is a raw, unparsed byte capture: the historical catalog
// of per-model field layouts is out of scope here, but the bytes are
// preserved so a ping round-trips through decode/encode unchanged.
type EM3Metadata struct {
	Raw []byte
}

// decodeSensorMetadata dispatches a ping's trailing sensor-specific
// subrecord to the decoder for its sensor id. Sensor ids this store does
// not have a typed decoder for fall back to EM3Metadata's raw capture,
// which is sufficient to preserve the bytes across a read/write cycle.
func decodeSensorMetadata(id SubRecordID, reader *bytes.Reader) any {
	switch id {
	case EM710, EM302, EM122, EM2040, EM3000, EM3002, EM3000D, EM3002D:
		md, err := decodeEM4Specific(reader)
		if err != nil {
			return EM3Metadata{Raw: remainingBytes(reader)}
		}
		return md
	default:
		return EM3Metadata{Raw: remainingBytes(reader)}
	}
}

// encodeSensorMetadata is the write-path inverse of decodeSensorMetadata.
func encodeSensorMetadata(md any) []byte {
	switch v := md.(type) {
	case EM4Metadata:
		return encodeEM4Specific(v)
	case EM3Metadata:
		return v.Raw
	default:
		return nil
	}
}

func remainingBytes(reader *bytes.Reader) []byte {
	buf := make([]byte, reader.Len())
	_, _ = reader.Read(buf)
	return buf
}

// decodeEM4Specific decodes the EM4-family sensor-specific subrecord: a 48
// byte fixed header, one 40 byte entry per transmit sector, a 16 byte spare
// block, a 63 byte runtime-parameters block and a 23 byte processor-unit
// block, in that order.
func decodeEM4Specific(reader *bytes.Reader) (EM4Metadata, error) {
	var fixed struct {
		ModelNumber            int16
		PingCounter            int16
		SerialNumber           int16
		SurfaceVelocity        int16
		TransducerDepth        int32
		ValidDetections        int16
		SamplingFrequency1     int32
		SamplingFrequency2     int32
		DopplerCorrectionScale int32
		VehicleDepth           int32
		Spare                  [4]int32
		TransmitSectors        int16
	}
	if err := binary.Read(reader, binary.BigEndian, &fixed); err != nil {
		return EM4Metadata{}, err
	}

	md := EM4Metadata{
		ModelNumber:            fixed.ModelNumber,
		PingCounter:            fixed.PingCounter,
		SerialNumber:           fixed.SerialNumber,
		SurfaceVelocity:        float32(fixed.SurfaceVelocity) / SCALE_1_F32,
		TransducerDepth:        float64(fixed.TransducerDepth) / 20_000.0,
		ValidDetections:        fixed.ValidDetections,
		SamplingFrequency:      float64(fixed.SamplingFrequency1) + float64(fixed.SamplingFrequency2)/4_000_000_000.0,
		DopplerCorrectionScale: fixed.DopplerCorrectionScale,
		VehicleDepth:           float32(fixed.VehicleDepth) / SCALE_3_F32,
		Sectors:                make([]EM4Sector, 0, fixed.TransmitSectors),
	}

	var sector struct {
		TiltAngle       int16
		FocusRange      int16
		SignalLength    int32
		TransmitDelay   int32
		CenterFrequency int32
		MeanAbsorption  int16
		WaveformID      uint8
		SectorNumber    uint8
		SignalBandwidth int32
		Spare           [4]int32
	}
	for i := int16(0); i < fixed.TransmitSectors; i++ {
		if err := binary.Read(reader, binary.BigEndian, &sector); err != nil {
			return EM4Metadata{}, err
		}
		md.Sectors = append(md.Sectors, EM4Sector{
			TiltAngle:       float32(sector.TiltAngle) / SCALE_2_F32,
			FocusRange:      float32(sector.FocusRange) / SCALE_1_F32,
			SignalLength:    float64(sector.SignalLength) / 1_000_000.0,
			TransmitDelay:   float64(sector.TransmitDelay) / 1_000_000.0,
			CenterFrequency: float64(sector.CenterFrequency) / SCALE_3_F64,
			MeanAbsorption:  float32(sector.MeanAbsorption) / SCALE_2_F32,
			WaveformID:      sector.WaveformID,
			SectorNumber:    sector.SectorNumber,
			SignalBandwidth: float64(sector.SignalBandwidth) / SCALE_3_F64,
		})
	}

	var spare struct {
		Spare [4]int32
	}
	if err := binary.Read(reader, binary.BigEndian, &spare); err != nil {
		return EM4Metadata{}, err
	}

	var rt struct {
		RunTimeModelNumber            int16
		RunTimeDatagramTimeSec        int32
		RunTimeDatagramTimeNsec       int32
		RunTimePingCounter            int16
		RunTimeSerialNumber           int16
		RunTimeOperatorStationStatus  uint8
		RunTimeProcessingUnitStatus   uint8
		RunTimeBspStatus              uint8
		RunTimeHeadTransceiverStatus  uint8
		RunTimeMode                   uint8
		RunTimeFilterID               uint8
		RunTimeMinDepth               int16
		RunTimeMaxDepth               int16
		RunTimeAbsorption             int16
		RunTimeTransmitPulseLength    int16
		RunTimeTransmitBeamWidth      int16
		RunTimeTransmitPowerReduction uint8
		RunTimeReceiveBeamWidth       uint8
		RunTimeReceiveBandwidth       uint8
		RunTimeReceiveFixedGain       uint8
		RunTimeTvgCrossOverAngle      uint8
		RunTimeSsvSource              uint8
		RunTimeMaxPortSwathWidth      int16
		RunTimeBeamSpacing            uint8
		RunTimeMaxPortCoverage        uint8
		RunTimeStabilization          uint8
		RunTimeMaxStbdCoverage        uint8
		RunTimeMaxStbdSwathWidth      int16
		RunTimeTransmitAlongTilt      int16
		RunTimeFilterID2              uint8
		Spare                         [4]int32
	}
	if err := binary.Read(reader, binary.BigEndian, &rt); err != nil {
		return EM4Metadata{}, err
	}

	md.RunTimeModelNumber = rt.RunTimeModelNumber
	md.RunTimeDatagramTime = time.Unix(int64(rt.RunTimeDatagramTimeSec), int64(rt.RunTimeDatagramTimeNsec)).UTC()
	md.RunTimePingCounter = rt.RunTimePingCounter
	md.RunTimeSerialNumber = rt.RunTimeSerialNumber
	md.RunTimeOperatorStationStatus = rt.RunTimeOperatorStationStatus
	md.RunTimeProcessingUnitStatus = rt.RunTimeProcessingUnitStatus
	md.RunTimeBspStatus = rt.RunTimeBspStatus
	md.RunTimeHeadTransceiverStatus = rt.RunTimeHeadTransceiverStatus
	md.RunTimeMode = rt.RunTimeMode
	md.RunTimeFilterID = rt.RunTimeFilterID
	md.RunTimeMinDepth = float32(rt.RunTimeMinDepth)
	md.RunTimeMaxDepth = float32(rt.RunTimeMaxDepth)
	md.RunTimeAbsorption = float32(rt.RunTimeAbsorption) / SCALE_2_F32
	md.RunTimeTransmitPulseLength = float32(rt.RunTimeTransmitPulseLength)
	md.RunTimeTransmitBeamWidth = float32(rt.RunTimeTransmitBeamWidth) / SCALE_1_F32
	md.RunTimeTransmitPowerReduction = rt.RunTimeTransmitPowerReduction
	md.RunTimeReceiveBeamWidth = float32(rt.RunTimeReceiveBeamWidth) / SCALE_1_F32
	md.RunTimeReceiveBandwidth = float32(rt.RunTimeReceiveBandwidth) * 50.0
	md.RunTimeReceiveFixedGain = rt.RunTimeReceiveFixedGain
	md.RunTimeTvgCrossOverAngle = rt.RunTimeTvgCrossOverAngle
	md.RunTimeSsvSource = rt.RunTimeSsvSource
	md.RunTimeMaxPortSwathWidth = rt.RunTimeMaxPortSwathWidth
	md.RunTimeBeamSpacing = rt.RunTimeBeamSpacing
	md.RunTimeMaxPortCoverage = rt.RunTimeMaxPortCoverage
	md.RunTimeStabilization = rt.RunTimeStabilization
	md.RunTimeMaxStbdCoverage = rt.RunTimeMaxStbdCoverage
	md.RunTimeMaxStbdSwathWidth = rt.RunTimeMaxStbdSwathWidth
	md.RunTimeTransmitAlongTilt = float32(rt.RunTimeTransmitAlongTilt) / SCALE_2_F32
	md.RunTimeFilterID2 = rt.RunTimeFilterID2

	var proc struct {
		ProcessorUnitCPULoad              uint8
		ProcessorUnitSensorStatus         uint16
		ProcessorUnitAchievedPortCoverage uint8
		ProcessorUnitAchievedStbdCoverage uint8
		ProcessorUnitYawStabilization     int16
		Spare                             [4]int32
	}
	if err := binary.Read(reader, binary.BigEndian, &proc); err != nil {
		return EM4Metadata{}, err
	}
	md.ProcessorUnitCPULoad = proc.ProcessorUnitCPULoad
	md.ProcessorUnitSensorStatus = proc.ProcessorUnitSensorStatus
	md.ProcessorUnitAchievedPortCoverage = proc.ProcessorUnitAchievedPortCoverage
	md.ProcessorUnitAchievedStbdCoverage = proc.ProcessorUnitAchievedStbdCoverage
	md.ProcessorUnitYawStabilization = float32(proc.ProcessorUnitYawStabilization) / SCALE_2_F32

	return md, nil
}

// encodeEM4Specific is the write-path inverse of decodeEM4Specific.
func encodeEM4Specific(md EM4Metadata) []byte {
	buf := new(bytes.Buffer)

	fixed := struct {
		ModelNumber            int16
		PingCounter            int16
		SerialNumber           int16
		SurfaceVelocity        int16
		TransducerDepth        int32
		ValidDetections        int16
		SamplingFrequency1     int32
		SamplingFrequency2     int32
		DopplerCorrectionScale int32
		VehicleDepth           int32
		Spare                  [4]int32
		TransmitSectors        int16
	}{
		ModelNumber:            md.ModelNumber,
		PingCounter:            md.PingCounter,
		SerialNumber:           md.SerialNumber,
		SurfaceVelocity:        int16(md.SurfaceVelocity * SCALE_1_F32),
		TransducerDepth:        int32(md.TransducerDepth * 20_000.0),
		ValidDetections:        md.ValidDetections,
		SamplingFrequency1:     int32(md.SamplingFrequency),
		SamplingFrequency2:     int32((md.SamplingFrequency - float64(int32(md.SamplingFrequency))) * 4_000_000_000.0),
		DopplerCorrectionScale: md.DopplerCorrectionScale,
		VehicleDepth:           int32(md.VehicleDepth * SCALE_3_F32),
		TransmitSectors:        int16(len(md.Sectors)),
	}
	_ = binary.Write(buf, binary.BigEndian, &fixed)

	for _, s := range md.Sectors {
		sector := struct {
			TiltAngle       int16
			FocusRange      int16
			SignalLength    int32
			TransmitDelay   int32
			CenterFrequency int32
			MeanAbsorption  int16
			WaveformID      uint8
			SectorNumber    uint8
			SignalBandwidth int32
			Spare           [4]int32
		}{
			TiltAngle:       int16(s.TiltAngle * SCALE_2_F32),
			FocusRange:      int16(s.FocusRange * SCALE_1_F32),
			SignalLength:    int32(s.SignalLength * 1_000_000.0),
			TransmitDelay:   int32(s.TransmitDelay * 1_000_000.0),
			CenterFrequency: int32(s.CenterFrequency * SCALE_3_F64),
			MeanAbsorption:  int16(s.MeanAbsorption * SCALE_2_F32),
			WaveformID:      s.WaveformID,
			SectorNumber:    s.SectorNumber,
			SignalBandwidth: int32(s.SignalBandwidth * SCALE_3_F64),
		}
		_ = binary.Write(buf, binary.BigEndian, &sector)
	}

	var spare struct {
		Spare [4]int32
	}
	_ = binary.Write(buf, binary.BigEndian, &spare)

	rt := struct {
		RunTimeModelNumber            int16
		RunTimeDatagramTimeSec        int32
		RunTimeDatagramTimeNsec       int32
		RunTimePingCounter            int16
		RunTimeSerialNumber           int16
		RunTimeOperatorStationStatus  uint8
		RunTimeProcessingUnitStatus   uint8
		RunTimeBspStatus              uint8
		RunTimeHeadTransceiverStatus  uint8
		RunTimeMode                   uint8
		RunTimeFilterID               uint8
		RunTimeMinDepth               int16
		RunTimeMaxDepth               int16
		RunTimeAbsorption             int16
		RunTimeTransmitPulseLength    int16
		RunTimeTransmitBeamWidth      int16
		RunTimeTransmitPowerReduction uint8
		RunTimeReceiveBeamWidth       uint8
		RunTimeReceiveBandwidth       uint8
		RunTimeReceiveFixedGain       uint8
		RunTimeTvgCrossOverAngle      uint8
		RunTimeSsvSource              uint8
		RunTimeMaxPortSwathWidth      int16
		RunTimeBeamSpacing            uint8
		RunTimeMaxPortCoverage        uint8
		RunTimeStabilization          uint8
		RunTimeMaxStbdCoverage        uint8
		RunTimeMaxStbdSwathWidth      int16
		RunTimeTransmitAlongTilt      int16
		RunTimeFilterID2              uint8
		Spare                         [4]int32
	}{
		RunTimeModelNumber:            md.RunTimeModelNumber,
		RunTimeDatagramTimeSec:        int32(md.RunTimeDatagramTime.Unix()),
		RunTimeDatagramTimeNsec:       int32(md.RunTimeDatagramTime.Nanosecond()),
		RunTimePingCounter:            md.RunTimePingCounter,
		RunTimeSerialNumber:           md.RunTimeSerialNumber,
		RunTimeOperatorStationStatus:  md.RunTimeOperatorStationStatus,
		RunTimeProcessingUnitStatus:   md.RunTimeProcessingUnitStatus,
		RunTimeBspStatus:              md.RunTimeBspStatus,
		RunTimeHeadTransceiverStatus:  md.RunTimeHeadTransceiverStatus,
		RunTimeMode:                   md.RunTimeMode,
		RunTimeFilterID:               md.RunTimeFilterID,
		RunTimeMinDepth:               int16(md.RunTimeMinDepth),
		RunTimeMaxDepth:               int16(md.RunTimeMaxDepth),
		RunTimeAbsorption:             int16(md.RunTimeAbsorption * SCALE_2_F32),
		RunTimeTransmitPulseLength:    int16(md.RunTimeTransmitPulseLength),
		RunTimeTransmitBeamWidth:      int16(md.RunTimeTransmitBeamWidth * SCALE_1_F32),
		RunTimeTransmitPowerReduction: md.RunTimeTransmitPowerReduction,
		RunTimeReceiveBeamWidth:       uint8(md.RunTimeReceiveBeamWidth * SCALE_1_F32),
		RunTimeReceiveBandwidth:       uint8(md.RunTimeReceiveBandwidth / 50.0),
		RunTimeReceiveFixedGain:       md.RunTimeReceiveFixedGain,
		RunTimeTvgCrossOverAngle:      md.RunTimeTvgCrossOverAngle,
		RunTimeSsvSource:              md.RunTimeSsvSource,
		RunTimeMaxPortSwathWidth:      md.RunTimeMaxPortSwathWidth,
		RunTimeBeamSpacing:            md.RunTimeBeamSpacing,
		RunTimeMaxPortCoverage:        md.RunTimeMaxPortCoverage,
		RunTimeStabilization:          md.RunTimeStabilization,
		RunTimeMaxStbdCoverage:        md.RunTimeMaxStbdCoverage,
		RunTimeMaxStbdSwathWidth:      md.RunTimeMaxStbdSwathWidth,
		RunTimeTransmitAlongTilt:      int16(md.RunTimeTransmitAlongTilt * SCALE_2_F32),
		RunTimeFilterID2:              md.RunTimeFilterID2,
	}
	_ = binary.Write(buf, binary.BigEndian, &rt)

	proc := struct {
		ProcessorUnitCPULoad              uint8
		ProcessorUnitSensorStatus         uint16
		ProcessorUnitAchievedPortCoverage uint8
		ProcessorUnitAchievedStbdCoverage uint8
		ProcessorUnitYawStabilization     int16
		Spare                             [4]int32
	}{
		ProcessorUnitCPULoad:              md.ProcessorUnitCPULoad,
		ProcessorUnitSensorStatus:         md.ProcessorUnitSensorStatus,
		ProcessorUnitAchievedPortCoverage: md.ProcessorUnitAchievedPortCoverage,
		ProcessorUnitAchievedStbdCoverage: md.ProcessorUnitAchievedStbdCoverage,
		ProcessorUnitYawStabilization:     int16(md.ProcessorUnitYawStabilization * SCALE_2_F32),
	}
	_ = binary.Write(buf, binary.BigEndian, &proc)

	return buf.Bytes()
}
