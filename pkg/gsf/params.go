package gsf

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soniakeys/meeus/v3/julian"
)

// ProcessingParameters is the decoded PROCESSING_PARAMETERS record: an
// ordered KEYWORD=VALUE parameter list describing survey-wide processing
// state, plus the record's own timestamp.
type ProcessingParameters struct {
	ProcessedTime time.Time
	// Keys preserves on-disk ordering so an UPDATE open can rewrite a
	// parameter string in place without perturbing its neighbours.
	Keys   []string
	Values map[string]string
}

// Get returns the raw string value for keyword, and whether it is present.
func (p ProcessingParameters) Get(keyword string) (string, bool) {
	v, ok := p.Values[keyword]
	return v, ok
}

// parseReferenceTime parses the "yyyy/ddd hh:mm:ss" REFERENCE TIME value
// using a day-of-year-to-calendar conversion, exactly as gsf-go's
// decode/params.go does via soniakeys/meeus's julian package.
func parseReferenceTime(value string) (time.Time, error) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("gsf: malformed REFERENCE TIME %q", value)
	}

	dateParts := strings.SplitN(parts[0], "/", 2)
	if len(dateParts) != 2 {
		return time.Time{}, fmt.Errorf("gsf: malformed REFERENCE TIME date %q", parts[0])
	}

	year, err := strconv.Atoi(dateParts[0])
	if err != nil {
		return time.Time{}, err
	}
	doy, err := strconv.Atoi(dateParts[1])
	if err != nil {
		return time.Time{}, err
	}

	month, day := julian.DayOfYearToCalendar(doy, julian.LeapYearGregorian(year))

	hms := strings.Split(parts[1], ":")
	if len(hms) != 3 {
		return time.Time{}, fmt.Errorf("gsf: malformed REFERENCE TIME clock %q", parts[1])
	}
	h, _ := strconv.Atoi(hms[0])
	m, _ := strconv.Atoi(hms[1])
	s, _ := strconv.Atoi(hms[2])

	return time.Date(year, time.Month(month), day, h, m, s, 0, time.UTC), nil
}

// formatReferenceTime is the write-path inverse of parseReferenceTime.
func formatReferenceTime(t time.Time) string {
	return fmt.Sprintf("%04d/%03d %02d:%02d:%02d", t.Year(), t.YearDay(), t.Hour(), t.Minute(), t.Second())
}

// processing-parameter vocabulary (§6 "Processing-parameter vocabulary
// (exhaustive)"). UNKNWN means "unset"; decode/encode pass every keyword
// through unchanged as a string.
var boolParams = map[string]bool{
	"ROLL_COMPENSATED": true, "PITCH_COMPENSATED": true, "HEAVE_COMPENSATED": true,
	"TIDE_COMPENSATED": true, "RAY_TRACING": true,
}

var depthCalcValues = map[string]bool{
	"CORRECTED": true, "RELATIVE_TO_1500_MS": true, "UNKNOWN": true,
}

var geoidValues = map[string]bool{"WGS-84": true, "UNKNWN": true}

var tidalDatumValues = map[string]bool{
	"MLLW": true, "MLW": true, "ALAT": true, "ESLW": true, "ISLW": true, "LAT": true,
	"LLW": true, "LNLW": true, "LWD": true, "MLHW": true, "MLLWS": true, "MLWN": true,
	"UNKNOWN": true,
}

// DecodeProcessingParameters decodes a PROCESSING_PARAMETERS record body.
// Each parameter is encoded as a u16 string length followed by a
// "KEYWORD=VALUE" string.
func DecodeProcessingParameters(buffer []byte) (ProcessingParameters, error) {
	var base struct {
		Seconds     int32
		NanoSeconds int32
		NParams     int16
	}

	reader := bytes.NewReader(buffer)
	if err := binary.Read(reader, binary.BigEndian, &base); err != nil {
		return ProcessingParameters{}, err
	}

	params := ProcessingParameters{
		ProcessedTime: time.Unix(int64(base.Seconds), int64(base.NanoSeconds)).UTC(),
		Keys:          make([]string, 0, base.NParams),
		Values:        make(map[string]string, base.NParams),
	}

	pos := 10
	for i := int16(0); i < base.NParams; i++ {
		if pos+2 > len(buffer) {
			return ProcessingParameters{}, ErrRecordSize
		}
		length := int(binary.BigEndian.Uint16(buffer[pos : pos+2]))
		pos += 2
		if pos+length > len(buffer) {
			return ProcessingParameters{}, ErrRecordSize
		}
		entry := strings.TrimRight(string(buffer[pos:pos+length]), "\x00")
		pos += length

		key, val, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)

		params.Keys = append(params.Keys, key)
		params.Values[key] = val
	}

	return params, nil
}

// EncodeProcessingParameters is the write-path inverse of
// DecodeProcessingParameters, preserving Keys order.
func EncodeProcessingParameters(p ProcessingParameters) []byte {
	buf := new(bytes.Buffer)
	base := struct {
		Seconds     int32
		NanoSeconds int32
		NParams     int16
	}{
		Seconds:     int32(p.ProcessedTime.Unix()),
		NanoSeconds: int32(p.ProcessedTime.Nanosecond()),
		NParams:     int16(len(p.Keys)),
	}
	_ = binary.Write(buf, binary.BigEndian, &base)

	for _, key := range p.Keys {
		entry := key + "=" + p.Values[key]
		length := uint16(len(entry))
		_ = binary.Write(buf, binary.BigEndian, length)
		buf.WriteString(entry)
	}

	return buf.Bytes()
}

// ValidateParameter reports whether value is a member of the closed
// vocabulary for keyword, for the subset of keywords backed by an
// enumeration (§6). Keywords with free-form numeric values are not
// validated here.
func ValidateParameter(keyword, value string) bool {
	switch keyword {
	case "ROLL_COMPENSATED", "PITCH_COMPENSATED", "HEAVE_COMPENSATED", "TIDE_COMPENSATED", "RAY_TRACING":
		return boolParams[keyword] && (strings.EqualFold(value, "YES") || strings.EqualFold(value, "NO"))
	case "DEPTH_CALCULATION":
		return depthCalcValues[strings.ToUpper(value)]
	case "GEOID":
		return geoidValues[strings.ToUpper(value)] || strings.EqualFold(value, "UNKNWN")
	case "TIDAL_DATUM":
		return tidalDatumValues[strings.ToUpper(value)]
	default:
		return true
	}
}

// UpdateParameter sets keyword to value in place. Under UPDATE/UPDATE_INDEX
// access (tracked by the caller), growing an existing parameter beyond its
// previous encoded length is rejected with ErrParamSizeFixed since the
// on-disk record layout cannot enlarge (§4.4 "Parameter records").
func (p *ProcessingParameters) UpdateParameter(keyword, value string, allowGrow bool) error {
	old, exists := p.Values[keyword]
	if exists && !allowGrow && len(value) > len(old) {
		return ErrParamSizeFixed
	}

	if !exists {
		p.Keys = append(p.Keys, keyword)
	}
	p.Values[keyword] = value
	return nil
}
