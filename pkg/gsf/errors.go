package gsf

import "errors"

// Closed set of GSF layer failures (§4.4, §7). Callers compare with
// errors.Is against these sentinels rather than matching on string text.
var (
	ErrBadAccessMode               = errors.New("gsf: bad access mode")
	ErrTooManyOpenFiles            = errors.New("gsf: too many open files")
	ErrFopen                       = errors.New("gsf: unable to open file")
	ErrRead                        = errors.New("gsf: read error")
	ErrWrite                       = errors.New("gsf: write error")
	ErrFileSeek                    = errors.New("gsf: file seek error")
	ErrFlush                       = errors.New("gsf: flush error")
	ErrChecksumFailure             = errors.New("gsf: checksum failure")
	ErrRecordSize                  = errors.New("gsf: record size error")
	ErrUnrecognizedRecordID        = errors.New("gsf: unrecognized record id")
	ErrUnrecognizedFile            = errors.New("gsf: unrecognized file")
	ErrMemoryAllocationFailed      = errors.New("gsf: memory allocation failed")
	ErrParamSizeFixed              = errors.New("gsf: processing parameter cannot grow on update")
	ErrIllegalScaleFactorMultiplier = errors.New("gsf: illegal scale factor multiplier")
	ErrCannotRepresentPrecision    = errors.New("gsf: cannot represent requested precision")
	ErrReadToEndOfFile             = errors.New("gsf: read to end of file")
	ErrIndexStale                  = errors.New("gsf: index is stale relative to the indexed file")
	ErrIndexMalformed              = errors.New("gsf: index file is malformed")
)
