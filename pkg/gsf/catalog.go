// Package gsf implements the Generic Sensor Format record store: a typed,
// checksum-protected record envelope with sequential and indexed random
// access, per-beam scale factor management, and the closed processing
// parameter vocabulary carried by GSF files.
package gsf

import (
	"github.com/samber/lo"
)

// RecordID identifies the type of a top level GSF record.
type RecordID uint32

// SubRecordID identifies a swath bathymetry ping subrecord, including the
// beam-array subrecords governed by scale factors and the sensor-specific
// subrecords that are not.
type SubRecordID int32

// SensorID narrows a subrecord to the specific sonar head that produced it.
type SensorID uint16

const (
	NEXT_RECORD        RecordID = 0
	BEAM_WIDTH_UNKNOWN  float32  = -1.0
)

// Fixed-point scale factors used throughout the GSF record decoders. Kept as
// named constants rather than inline literals so a change only happens in
// one place.
const (
	SCALE_1_F32  float32 = 10.0
	SCALE_1_F64  float64 = 10.0
	SCALE_2_F32  float32 = 100.0
	SCALE_2_F64  float64 = 100.0
	SCALE_3_F32  float32 = 1_000.0
	SCALE_3_F64  float64 = 1_000.0
	SCALE_4_F32  float32 = 10_000.0
	SCALE_4_F64  float64 = 10_000.0
	SCALE_5_F32  float32 = 100_000.0
	SCALE_5_F64  float64 = 100_000.0
	SCALE_6_F32  float32 = 1_000_000.0
	SCALE_6_F64  float64 = 1_000_000.0
	SCALE_7_F32  float32 = 10_000_000.0
	SCALE_7_F64  float64 = 10_000_000.0
)

const (
	MAX_BEAM_ARRAY_SUBRECORD_ID SubRecordID = 31

	// MAX_RECORD_SIZE bounds a single GSF record's data_size; a record
	// claiming a larger size is a fatal framing error for the file (§4.4).
	MAX_RECORD_SIZE uint32 = 32 * 1024 * 1024
)

// Top level GSF record IDs (§3, "GSF record envelope").
const (
	HEADER RecordID = 1 + iota
	SWATH_BATHYMETRY_PING
	SOUND_VELOCITY_PROFILE
	PROCESSING_PARAMETERS
	SENSOR_PARAMETERS
	COMMENT
	HISTORY
	NAVIGATION_ERROR // obsolete
	SWATH_BATHY_SUMMARY
	SINGLE_BEAM_PING    // use discouraged
	HV_NAVIGATION_ERROR // replaces navigation error
	ATTITUDE            // 12
)

// Swath bathymetry ping beam-array subrecord IDs; these are the subrecords
// governed by a ScaleFactor entry.
const (
	DEPTH SubRecordID = 1 + iota
	ACROSS_TRACK
	ALONG_TRACK
	TRAVEL_TIME
	BEAM_ANGLE
	MEAN_CAL_AMPLITUDE
	MEAN_REL_AMPLITUDE
	ECHO_WIDTH
	QUALITY_FACTOR // replaces quality flags
	RECEIVE_HEAVE
	DEPTH_ERROR        // obsolete
	ACROSS_TRACK_ERROR // obsolete
	ALONG_TRACK_ERROR  // obsolete
	NOMINAL_DEPTH
	QUALITY_FLAGS // considered obsolete
	BEAM_FLAGS
	SIGNAL_TO_NOISE
	BEAM_ANGLE_FORWARD
	VERTICAL_ERROR   // replaces depth error
	HORIZONTAL_ERROR // replaces across track error
	INTENSITY_SERIES
	SECTOR_NUMBER
	DETECTION_INFO
	INCIDENT_BEAM_ADJ
	SYSTEM_CLEANING
	DOPPLER_CORRECTION
	SONAR_VERT_UNCERTAINTY
	SONAR_HORZ_UNCERTAINTY
	DETECTION_WINDOW
	MEAN_ABS_COEF // 30
	TVG_DB        // 31
)

// General and sensor-specific subrecord IDs.
const (
	UNKNOWN       SubRecordID = 0
	SCALE_FACTORS SubRecordID = 100
)

// Sensor-specific subrecord IDs. Per Design Notes §9 the historical "SASS"
// id is compiled out upstream and treated here as unrecognized-sensor.
const (
	SEABEAM SubRecordID = 102 + iota
	EM12
	EM100
	EM950
	EM121A
	EM121
	sassReserved // historical SASS slot; treated as unrecognized sensor, see DESIGN.md
	SEAMAP
	SEABAT
	EM1000
	TYPEIII_SEABEAM
	SB_AMP
	SEABAT_II
	SEABAT_8101
	SEABEAM_2112
	ELAC_MKII
	EM3000
	EM1002
	EM300
	CMP_SAAS
	RESON_8101
	RESON_8111
	RESON_8124
	RESON_8125
	RESON_8150
	RESON_8160
	EM120
	EM3002
	EM3000D
	EM3002D
	EM121A_SIS
	EM710
	EM302
	EM122
	GEOSWATH_PLUS
	KLEIN_5410_BSS
	RESON_7125
	EM2000
	EM300_RAW
	EM1002_RAW
	EM2000_RAW
	EM3000_RAW
	EM120_RAW
	EM3002_RAW
	EM3000D_RAW
	EM3002D_RAW
	EM121A_SIS_RAW
	EM2040
	DELTA_T
	R2SONIC_2022
	R2SONIC_2024
	R2SONIC_2020
	srNotDefined // the GSF spec makes no mention of ID 154
	RESON_TSERIES
	KMALL // 156
)

// Field sizes / byte widths for ping beam subarrays (compression_flag high
// nibble, §3 "Scale-factor semantics").
const (
	FIELD_SIZE_DEFAULT     uint32 = 0x00
	FIELD_SIZE_ONE         uint32 = 0x10
	FIELD_SIZE_TWO         uint32 = 0x20
	FIELD_SIZE_FOUR        uint32 = 0x40
	BYTES_PER_BEAM_DEFAULT uint32 = 2
	BYTES_PER_BEAM_ONE     uint32 = 1
	BYTES_PER_BEAM_TWO     uint32 = 2
	BYTES_PER_BEAM_FOUR    uint32 = 4
)

// SubRecordNames labels beam-array and sensor subrecord IDs with human
// readable names.
var SubRecordNames = map[SubRecordID]string{
	DEPTH:                  "Z",
	ACROSS_TRACK:           "ACROSS_TRACK",
	ALONG_TRACK:            "ALONG_TRACK",
	TRAVEL_TIME:            "TRAVEL_TIME",
	BEAM_ANGLE:             "BEAM_ANGLE",
	MEAN_CAL_AMPLITUDE:     "MEAN_CAL_AMPLITUDE",
	MEAN_REL_AMPLITUDE:     "MEAN_REL_AMPLITUDE",
	ECHO_WIDTH:             "ECHO_WIDTH",
	QUALITY_FACTOR:         "QUALITY_FACTOR",
	RECEIVE_HEAVE:          "RECEIVE_HEAVE",
	DEPTH_ERROR:            "DEPTH_ERROR",
	ACROSS_TRACK_ERROR:     "ACROSS_TRACK_ERROR",
	ALONG_TRACK_ERROR:      "ALONG_TRACK_ERROR",
	NOMINAL_DEPTH:          "NOMINAL_DEPTH",
	QUALITY_FLAGS:          "QUALITY_FLAGS",
	BEAM_FLAGS:             "BEAM_FLAGS",
	SIGNAL_TO_NOISE:        "SIGNAL_TO_NOISE",
	BEAM_ANGLE_FORWARD:     "BEAM_ANGLE_FORWARD",
	VERTICAL_ERROR:         "VERTICAL_ERROR",
	HORIZONTAL_ERROR:       "HORIZONTAL_ERROR",
	INTENSITY_SERIES:       "INTENSITY_SERIES",
	SECTOR_NUMBER:          "SECTOR_NUMBER",
	DETECTION_INFO:         "DETECTION_INFO",
	INCIDENT_BEAM_ADJ:      "INCIDENT_BEAM_ADJ",
	SYSTEM_CLEANING:        "SYSTEM_CLEANING",
	DOPPLER_CORRECTION:     "DOPPLER_CORRECTION",
	SONAR_VERT_UNCERTAINTY: "SONAR_VERT_UNCERTAINTY",
	SONAR_HORZ_UNCERTAINTY: "SONAR_HORZ_UNCERTAINTY",
	DETECTION_WINDOW:       "DETECTION_WINDOW",
	MEAN_ABS_COEF:          "MEAN_ABS_COEF",
	UNKNOWN:                "UNKNOWN",
	SCALE_FACTORS:          "SCALE_FACTORS",
	EM710:                  "EM710",
	EM302:                  "EM302",
	EM122:                  "EM122",
	EM2040:                 "EM2040",
	EM3000:                 "EM3000",
	EM3002:                 "EM3002",
	EM3000D:                "EM3000D",
	EM3002D:                "EM3002D",
	RESON_7125:             "RESON_7125",
	KMALL:                  "KMALL",
}

// InvSubRecordNames maps a rendered subrecord name back to its ID.
var InvSubRecordNames = lo.Invert(SubRecordNames)

// RecordNames labels top level GSF record IDs.
var RecordNames = map[RecordID]string{
	HEADER:                 "HEADER",
	SWATH_BATHYMETRY_PING:  "SWATH_BATHYMETRY_PING",
	SOUND_VELOCITY_PROFILE: "SOUND_VELOCITY_PROFILE",
	PROCESSING_PARAMETERS:  "PROCESSING_PARAMETERS",
	SENSOR_PARAMETERS:      "SENSOR_PARAMETERS",
	COMMENT:                "COMMENT",
	HISTORY:                "HISTORY",
	NAVIGATION_ERROR:       "NAVIGATION_ERROR",
	SWATH_BATHY_SUMMARY:    "SWATH_BATHY_SUMMARY",
	SINGLE_BEAM_PING:       "SINGLE_BEAM_PING",
	HV_NAVIGATION_ERROR:    "HV_NAVIGATION_ERROR",
	ATTITUDE:               "ATTITUDE",
}

// beamArraySubrecordIDs lists every subrecord ID governed by a scale factor
// entry (§3 "Scale-factor semantics"); used to size the per-file scale
// factor table.
var beamArraySubrecordIDs = []SubRecordID{
	DEPTH, ACROSS_TRACK, ALONG_TRACK, TRAVEL_TIME, BEAM_ANGLE,
	MEAN_CAL_AMPLITUDE, MEAN_REL_AMPLITUDE, ECHO_WIDTH, QUALITY_FACTOR,
	RECEIVE_HEAVE, DEPTH_ERROR, ACROSS_TRACK_ERROR, ALONG_TRACK_ERROR,
	NOMINAL_DEPTH, QUALITY_FLAGS, BEAM_FLAGS, SIGNAL_TO_NOISE,
	BEAM_ANGLE_FORWARD, VERTICAL_ERROR, HORIZONTAL_ERROR, INTENSITY_SERIES,
	SECTOR_NUMBER, DETECTION_INFO, INCIDENT_BEAM_ADJ, SYSTEM_CLEANING,
	DOPPLER_CORRECTION, SONAR_VERT_UNCERTAINTY, SONAR_HORZ_UNCERTAINTY,
	DETECTION_WINDOW, MEAN_ABS_COEF, TVG_DB,
}
