package gsf

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
)

// Comment is the decoded COMMENT record: a free text note tagged with the
// time it was created, used for capturing survey events.
type Comment struct {
	Timestamp time.Time
	Value     string
}

// DecodeComment decodes a COMMENT record body.
func DecodeComment(buffer []byte) (Comment, error) {
	var hdr struct {
		Seconds       int32
		NanoSeconds   int32
		CommentLength int32
	}

	reader := bytes.NewReader(buffer)
	if err := binary.Read(reader, binary.BigEndian, &hdr); err != nil {
		return Comment{}, err
	}

	return Comment{
		Timestamp: time.Unix(int64(hdr.Seconds), int64(hdr.NanoSeconds)).UTC(),
		Value:     strings.TrimRight(string(buffer[12:]), "\x00"),
	}, nil
}

// EncodeComment is the write-path inverse of DecodeComment.
func EncodeComment(c Comment) []byte {
	buf := new(bytes.Buffer)
	hdr := struct {
		Seconds       int32
		NanoSeconds   int32
		CommentLength int32
	}{
		Seconds:       int32(c.Timestamp.Unix()),
		NanoSeconds:   int32(c.Timestamp.Nanosecond()),
		CommentLength: int32(len(c.Value)),
	}
	_ = binary.Write(buf, binary.BigEndian, &hdr)
	buf.WriteString(c.Value)
	return buf.Bytes()
}

// SwathBathySummary is the decoded SWATH_BATHY_SUMMARY record: the
// geometrical and temporal extent of every ping in the file.
type SwathBathySummary struct {
	StartDatetime time.Time
	EndDatetime   time.Time
	MinLongitude  float64
	MaxLongitude  float64
	MinLatitude   float64
	MaxLatitude   float64
	MinDepth      float64
	MaxDepth      float64
}

// DecodeSwathBathySummary decodes a SWATH_BATHY_SUMMARY record body.
func DecodeSwathBathySummary(reader *bytes.Reader) (SwathBathySummary, error) {
	var raw struct {
		FirstPingSec     uint32
		FirstPingNanoSec uint32
		LastPingSec      uint32
		LastPingNanoSec  uint32
		MinLat           uint32
		MinLon           uint32
		MaxLat           uint32
		MaxLon           uint32
		MinDepth         uint32
		MaxDepth         int32
	}

	if err := binary.Read(reader, binary.BigEndian, &raw); err != nil {
		return SwathBathySummary{}, err
	}

	return SwathBathySummary{
		StartDatetime: time.Unix(int64(raw.FirstPingSec), int64(raw.FirstPingNanoSec)).UTC(),
		EndDatetime:   time.Unix(int64(raw.LastPingSec), int64(raw.LastPingNanoSec)).UTC(),
		MinLongitude:  float64(int32(raw.MinLon)) / SCALE_7_F64,
		MaxLongitude:  float64(int32(raw.MaxLon)) / SCALE_7_F64,
		MinLatitude:   float64(int32(raw.MinLat)) / SCALE_7_F64,
		MaxLatitude:   float64(int32(raw.MaxLat)) / SCALE_7_F64,
		MinDepth:      float64(raw.MinDepth) / SCALE_2_F64,
		MaxDepth:      float64(raw.MaxDepth) / SCALE_2_F64,
	}, nil
}

// EncodeSwathBathySummary is the write-path inverse of DecodeSwathBathySummary.
func EncodeSwathBathySummary(s SwathBathySummary) []byte {
	buf := new(bytes.Buffer)
	raw := struct {
		FirstPingSec     uint32
		FirstPingNanoSec uint32
		LastPingSec      uint32
		LastPingNanoSec  uint32
		MinLat           uint32
		MinLon           uint32
		MaxLat           uint32
		MaxLon           uint32
		MinDepth         uint32
		MaxDepth         int32
	}{
		FirstPingSec:     uint32(s.StartDatetime.Unix()),
		FirstPingNanoSec: uint32(s.StartDatetime.Nanosecond()),
		LastPingSec:      uint32(s.EndDatetime.Unix()),
		LastPingNanoSec:  uint32(s.EndDatetime.Nanosecond()),
		MinLat:           uint32(int32(s.MinLatitude * SCALE_7_F64)),
		MinLon:           uint32(int32(s.MinLongitude * SCALE_7_F64)),
		MaxLat:           uint32(int32(s.MaxLatitude * SCALE_7_F64)),
		MaxLon:           uint32(int32(s.MaxLongitude * SCALE_7_F64)),
		MinDepth:         uint32(s.MinDepth * SCALE_2_F64),
		MaxDepth:         int32(s.MaxDepth * SCALE_2_F64),
	}
	_ = binary.Write(buf, binary.BigEndian, &raw)
	return buf.Bytes()
}

// SoundVelocityProfile is the decoded SOUND_VELOCITY_PROFILE record: the
// sound velocity values used to estimate individual sounding locations.
type SoundVelocityProfile struct {
	ObservationTimestamp time.Time
	AppliedTimestamp     time.Time
	Longitude            float64
	Latitude             float64
	Depth                []float32
	SoundVelocity        []float32
}

// DecodeSoundVelocityProfile decodes a SOUND_VELOCITY_PROFILE record body.
func DecodeSoundVelocityProfile(buffer []byte) (SoundVelocityProfile, error) {
	var hdr struct {
		ObsSeconds     uint32
		ObsNanoSeconds uint32
		AppSeconds     uint32
		AppNanoSeconds uint32
		Longitude      uint32
		Latitude       uint32
		NPoints        uint32
	}

	reader := bytes.NewReader(buffer)
	if err := binary.Read(reader, binary.BigEndian, &hdr); err != nil {
		return SoundVelocityProfile{}, err
	}

	points := make([]uint32, 2*hdr.NPoints)
	if err := binary.Read(reader, binary.BigEndian, &points); err != nil {
		return SoundVelocityProfile{}, err
	}

	depth := make([]float32, 0, hdr.NPoints)
	velocity := make([]float32, 0, hdr.NPoints)
	for i := 0; i < len(points); i += 2 {
		depth = append(depth, float32(float64(points[i])/SCALE_2_F64))
		velocity = append(velocity, float32(float64(points[i+1])/SCALE_2_F64))
	}

	return SoundVelocityProfile{
		ObservationTimestamp: time.Unix(int64(hdr.ObsSeconds), int64(hdr.ObsNanoSeconds)).UTC(),
		AppliedTimestamp:     time.Unix(int64(hdr.AppSeconds), int64(hdr.AppNanoSeconds)).UTC(),
		Longitude:            float64(int32(hdr.Longitude)) / SCALE_7_F64,
		Latitude:             float64(int32(hdr.Latitude)) / SCALE_7_F64,
		Depth:                depth,
		SoundVelocity:        velocity,
	}, nil
}

// EncodeSoundVelocityProfile is the write-path inverse of DecodeSoundVelocityProfile.
func EncodeSoundVelocityProfile(s SoundVelocityProfile) []byte {
	buf := new(bytes.Buffer)
	hdr := struct {
		ObsSeconds     uint32
		ObsNanoSeconds uint32
		AppSeconds     uint32
		AppNanoSeconds uint32
		Longitude      uint32
		Latitude       uint32
		NPoints        uint32
	}{
		ObsSeconds:     uint32(s.ObservationTimestamp.Unix()),
		ObsNanoSeconds: uint32(s.ObservationTimestamp.Nanosecond()),
		AppSeconds:     uint32(s.AppliedTimestamp.Unix()),
		AppNanoSeconds: uint32(s.AppliedTimestamp.Nanosecond()),
		Longitude:      uint32(int32(s.Longitude * SCALE_7_F64)),
		Latitude:       uint32(int32(s.Latitude * SCALE_7_F64)),
		NPoints:        uint32(len(s.Depth)),
	}
	_ = binary.Write(buf, binary.BigEndian, &hdr)

	points := make([]uint32, 0, 2*len(s.Depth))
	for i := range s.Depth {
		points = append(points, uint32(s.Depth[i]*SCALE_2_F32), uint32(s.SoundVelocity[i]*SCALE_2_F32))
	}
	_ = binary.Write(buf, binary.BigEndian, points)
	return buf.Bytes()
}

// Attitude is the decoded ATTITUDE record: a burst of vessel attitude
// measurements sharing a base time with per-sample millisecond offsets.
type Attitude struct {
	Timestamp []time.Time
	Pitch     []float32
	Roll      []float32
	Heave     []float32
	Heading   []float32
}

// DecodeAttitude decodes an ATTITUDE record body.
func DecodeAttitude(buffer []byte) (Attitude, error) {
	reader := bytes.NewReader(buffer)

	var base struct {
		Seconds      int32
		NanoSeconds  int32
		Measurements int16
	}
	if err := binary.Read(reader, binary.BigEndian, &base); err != nil {
		return Attitude{}, err
	}

	baseTime := time.Unix(int64(base.Seconds), int64(base.NanoSeconds)).UTC()
	n := int(base.Measurements)

	att := Attitude{
		Timestamp: make([]time.Time, n),
		Pitch:     make([]float32, n),
		Roll:      make([]float32, n),
		Heave:     make([]float32, n),
		Heading:   make([]float32, n),
	}

	var sample struct {
		TimeOffset int16
		Pitch      int16
		Roll       int16
		Heave      int16
		Heading    uint16
	}
	for i := 0; i < n; i++ {
		if err := binary.Read(reader, binary.BigEndian, &sample); err != nil {
			return Attitude{}, err
		}
		att.Timestamp[i] = baseTime.Add(time.Millisecond * time.Duration(sample.TimeOffset))
		att.Pitch[i] = float32(float64(sample.Pitch) / SCALE_2_F64)
		att.Roll[i] = float32(float64(sample.Roll) / SCALE_2_F64)
		att.Heave[i] = float32(float64(sample.Heave) / SCALE_2_F64)
		att.Heading[i] = float32(float64(sample.Heading) / SCALE_2_F64)
	}

	return att, nil
}

// EncodeAttitude is the write-path inverse of DecodeAttitude.
func EncodeAttitude(att Attitude) []byte {
	buf := new(bytes.Buffer)
	n := len(att.Timestamp)
	if n == 0 {
		return buf.Bytes()
	}

	base := att.Timestamp[0]
	hdr := struct {
		Seconds      int32
		NanoSeconds  int32
		Measurements int16
	}{
		Seconds:      int32(base.Unix()),
		NanoSeconds:  int32(base.Nanosecond()),
		Measurements: int16(n),
	}
	_ = binary.Write(buf, binary.BigEndian, &hdr)

	for i := 0; i < n; i++ {
		sample := struct {
			TimeOffset int16
			Pitch      int16
			Roll       int16
			Heave      int16
			Heading    uint16
		}{
			TimeOffset: int16(att.Timestamp[i].Sub(base).Milliseconds()),
			Pitch:      int16(att.Pitch[i] * SCALE_2_F32),
			Roll:       int16(att.Roll[i] * SCALE_2_F32),
			Heave:      int16(att.Heave[i] * SCALE_2_F32),
			Heading:    uint16(att.Heading[i] * SCALE_2_F32),
		}
		_ = binary.Write(buf, binary.BigEndian, &sample)
	}

	return buf.Bytes()
}
