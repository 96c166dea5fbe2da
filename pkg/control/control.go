// Package control implements the 7K subscription/control channel (spec
// component E, §4.3): a tiny request-response protocol layered on the same
// transport the frame stream traverses, used to subscribe to a list of
// record_type_ids and to request device configuration.
package control

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/reson7k/sonarcore/pkg/frame"
	"github.com/reson7k/sonarcore/pkg/sevenk"
	"github.com/reson7k/sonarcore/pkg/transport"
)

// Endpoint is the (device_id, system_enumerator) pair a device mnemonic
// resolves to (spec §6 "Supported device mnemonics").
type Endpoint struct {
	DeviceID         uint32
	SystemEnumerator uint16
}

// Device ids and system enumerators behind the named mnemonics. The spec
// names the mnemonics and which enumerator family they share but not their
// numeric values; these are this module's symbolic assignment of them.
const (
	deviceT50         uint32 = 50
	device7KCenter    uint32 = 7000
	enumeratorDefault uint16 = 0
	enumerator200KHz  uint16 = 200
	enumerator400KHz  uint16 = 400
)

// Mnemonics maps the device mnemonics named in spec §6 to their endpoint.
var Mnemonics = map[string]Endpoint{
	"T50":      {DeviceID: deviceT50, SystemEnumerator: enumeratorDefault},
	"7125_200": {DeviceID: device7KCenter, SystemEnumerator: enumerator200KHz},
	"7125_400": {DeviceID: device7KCenter, SystemEnumerator: enumerator400KHz},
}

// rthSize is the fixed size of the 7500 record-type header that prologues
// every REMCON record body: {remcon_id u32, ticket u32, tracking_number[16]}.
const rthSize = 4 + 4 + 16

var (
	// ErrUnknownMnemonic is returned by NewClient for an unrecognized
	// device mnemonic.
	ErrUnknownMnemonic = errors.New("control: unknown device mnemonic")
	// ErrNACK is returned when the device replies NACK to a request,
	// typically signalling a bad device_id/system_enumerator pairing.
	ErrNACK = errors.New("control: device NACKed the request")
	// ErrUnexpectedReply is returned when a reply's record_type_id is
	// neither the one requested nor part of the ACK/NACK handshake.
	ErrUnexpectedReply = errors.New("control: unexpected reply record type")
)

// ticketCounter and trackingCounter are process-local monotone counters
// (spec §4.3 "Ticket and tracking number are process-local monotone
// counters").
var (
	ticketCounter   uint32
	trackingCounter uint64
)

func nextTicket() uint32 {
	return atomic.AddUint32(&ticketCounter, 1)
}

func nextTrackingNumber() [16]byte {
	n := atomic.AddUint64(&trackingCounter, 1)
	var tn [16]byte
	binary.LittleEndian.PutUint64(tn[:8], n)
	return tn
}

// Client issues subscribe/request-configuration calls over a transport and
// reads the reply by reusing the stream parser (spec §4.3 "Both operations
// serialize a full NF+DRF+data+checksum, send, then read a single NF+DRF
// reply by reusing the parser").
type Client struct {
	stream   transport.ByteStream
	parser   *sevenk.Parser
	endpoint Endpoint
}

// NewClient returns a Client that addresses mnemonic over stream.
func NewClient(stream transport.ByteStream, mnemonic string, timeout time.Duration) (*Client, error) {
	ep, ok := Mnemonics[mnemonic]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMnemonic, mnemonic)
	}
	return &Client{
		stream:   stream,
		parser:   sevenk.NewParser(sevenk.NetStream, stream, timeout),
		endpoint: ep,
	}, nil
}

// buildRecord assembles a full NF+DRF+data+checksum REMCON record carrying
// remconID and the given record-data block (spec §3 "Subscription
// envelope").
func (c *Client) buildRecord(remconID uint32, data []byte) []byte {
	rth := make([]byte, rthSize)
	binary.LittleEndian.PutUint32(rth[0:4], remconID)
	binary.LittleEndian.PutUint32(rth[4:8], nextTicket())
	tn := nextTrackingNumber()
	copy(rth[8:24], tn[:])

	body := append(rth, data...)
	size := uint32(frame.DRFSize + len(body) + 4)

	drf := frame.DataRecordFrame{
		ProtocolVersion:  frame.DRFProto,
		Offset:           frame.DRFSize,
		SyncPattern:      frame.DRFSync,
		Size:             size,
		Time:             frame.TimestampFrom7K(time.Now()),
		RecordVersion:    1,
		RecordTypeID:     uint32(frame.RTRemcon),
		DeviceID:         c.endpoint.DeviceID,
		SystemEnumerator: c.endpoint.SystemEnumerator,
		Flags:            0x1,
	}

	drfBytes := append(drf.Encode(), body...)
	sum := frame.Checksum(drfBytes)
	sumBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sumBuf, sum)
	drfBytes = append(drfBytes, sumBuf...)

	nf := frame.NetworkFrame{
		ProtocolVersion: frame.NFProto,
		Offset:          frame.NFSize,
		TotalPackets:    1,
		TotalRecords:    1,
		PacketSize:      uint32(frame.NFSize) + size,
		TotalSize:       size,
	}
	return append(nf.Encode(), drfBytes...)
}

// Subscribe requests delivery of the given record_type_ids on the client's
// device endpoint and waits for the ACK/NACK reply (spec §4.3 "Subscribe").
func (c *Client) Subscribe(ids []frame.RecordTypeID, timeout time.Duration) error {
	data := make([]byte, 4+4*len(ids))
	binary.LittleEndian.PutUint32(data[0:4], uint32(len(ids)))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(data[4+4*i:8+4*i], uint32(id))
	}

	if _, err := c.stream.Write(c.buildRecord(frame.RemconSub, data)); err != nil {
		return fmt.Errorf("control: sending subscribe: %w", err)
	}

	c.parser.SetTimeout(timeout)
	return c.awaitAck()
}

// RequestConfig asks the device for its configuration of recordType and
// returns the CONFIG_DATA reply that follows the ACK (spec §4.3 "Request
// configuration").
func (c *Client) RequestConfig(recordType frame.RecordTypeID, timeout time.Duration) (frame.Frame, error) {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, uint32(recordType))

	if _, err := c.stream.Write(c.buildRecord(frame.RemconReqRec, data)); err != nil {
		return frame.Frame{}, fmt.Errorf("control: sending config request: %w", err)
	}

	c.parser.SetTimeout(timeout)
	if err := c.awaitAck(); err != nil {
		return frame.Frame{}, err
	}

	fr, status, err := c.parser.Next(0)
	if err != nil || status != sevenk.StatusOK {
		return frame.Frame{}, fmt.Errorf("control: reading CONFIG_DATA reply: %w", err)
	}
	if frame.RecordTypeID(fr.DRF.RecordTypeID) != frame.RTConfigData {
		return frame.Frame{}, ErrUnexpectedReply
	}
	return fr, nil
}

// Next reads the next frame arriving on the client's stream after a
// successful Subscribe, reusing the same parser the handshake was read
// through so no bytes are dropped between the ACK and the first delivered
// frame.
func (c *Client) Next(timeout time.Duration) (frame.Frame, sevenk.Status, error) {
	c.parser.SetTimeout(timeout)
	return c.parser.Next(0)
}

// awaitAck reads the next frame and requires it be a REMCON ACK; a NACK
// becomes ErrNACK, anything else ErrUnexpectedReply.
func (c *Client) awaitAck() error {
	fr, status, err := c.parser.Next(0)
	if err != nil || status != sevenk.StatusOK {
		return fmt.Errorf("control: reading ACK/NACK reply: %w", err)
	}
	switch frame.RecordTypeID(fr.DRF.RecordTypeID) {
	case frame.RTRemconACK:
		return nil
	case frame.RTRemconNACK:
		return ErrNACK
	default:
		return ErrUnexpectedReply
	}
}
