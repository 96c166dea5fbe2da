// Package replay implements the replay/fan-out engine (spec component G):
// a TCP listener that accepts subscribing clients, a producer that reads a
// recorded 7K capture and paces delivery against the capture's embedded
// timestamps, and a worker-pool-backed fan-out so one slow subscriber
// cannot stall the producer reading the next frame. Grounded on the mbtrn
// test server (original_source/src/mbtrn/utils/emu7k.c).
package replay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/alitto/pond"

	"github.com/reson7k/sonarcore/pkg/frame"
	"github.com/reson7k/sonarcore/pkg/sevenk"
	"github.com/reson7k/sonarcore/pkg/transport"
)

// ackRTHSize is the size of the 7501 ACK record-type header (ticket +
// tracking_number), grounded on emu7k.c's r7k_rth_7501_ack_t.
const ackRTHSize = 4 + 16

// ErrNotSubscribe is returned by the handshake when a connecting client's
// first record is not a REMCON/SUB request.
var ErrNotSubscribe = errors.New("replay: first client record was not a subscribe request")

// client is one fan-out subscriber: a live connection plus the set of
// record_type_ids it asked to receive.
type client struct {
	conn net.Conn
	subs map[frame.RecordTypeID]bool
	dead bool // marked by a failed write, swept before the next frame
}

// Server accepts subscribing clients and paces a capture's frames out to
// them (spec §4.3 handshake, §5 "one listener goroutine, one producer
// goroutine", §9 "fan-out client list, mark then sweep").
type Server struct {
	ln       net.Listener
	pool     *pond.WorkerPool
	minDelay time.Duration
	maxDelay time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	clients []*client

	seq uint32
}

// NewServer starts listening on addr. fanoutWorkers sizes the transmit pool
// (spec §5 "an alitto/pond pool for per-client transmit"); minDelay/maxDelay
// bound the pacing applied between consecutive frames (spec §6 `--min-delay`
// / `--max-delay`).
func NewServer(addr string, minDelay, maxDelay time.Duration, fanoutWorkers int, log *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("replay: listen %s: %w", addr, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		ln:       ln,
		pool:     pond.New(fanoutWorkers, fanoutWorkers*4),
		minDelay: minDelay,
		maxDelay: maxDelay,
		log:      log,
	}, nil
}

// Close stops accepting connections and releases the transmit pool.
func (s *Server) Close() error {
	s.pool.StopAndWait()
	return s.ln.Close()
}

// AcceptLoop accepts connections until the listener is closed, handshaking
// each one on its own goroutine so a slow or malformed client cannot delay
// others from subscribing.
func (s *Server) AcceptLoop() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			if err := s.handshake(conn); err != nil {
				s.log.Warn("replay: client handshake failed", "error", err, "remote", conn.RemoteAddr())
				conn.Close()
			}
		}()
	}
}

// handshake reads the connecting client's REMCON/SUB request, replies with
// an ACK, and adds the client to the fan-out list (spec §4.3 "Subscribe";
// grounded on emu7k.c's s_server_handle_request).
func (s *Server) handshake(conn net.Conn) error {
	p := sevenk.NewParser(sevenk.NetStream, transport.NewTCPTransport(conn), 5*time.Second)
	fr, status, err := p.Next(0)
	if err != nil || status != sevenk.StatusOK {
		return fmt.Errorf("replay: reading subscribe request: %w", err)
	}
	if frame.RecordTypeID(fr.DRF.RecordTypeID) != frame.RTRemcon {
		return ErrNotSubscribe
	}

	checked, plain, hasChecksum := fr.Payload()
	data := plain
	if hasChecksum {
		data = checked.Data
	}
	if len(data) < rthSize+4 {
		return ErrNotSubscribe
	}
	remconID := binary.LittleEndian.Uint32(data[0:4])
	if remconID != frame.RemconSub {
		return ErrNotSubscribe
	}

	subData := data[rthSize:]
	count := binary.LittleEndian.Uint32(subData[0:4])
	subs := make(map[frame.RecordTypeID]bool, count)
	for i := uint32(0); i < count; i++ {
		off := 4 + 4*i
		if int(off+4) > len(subData) {
			break
		}
		subs[frame.RecordTypeID(binary.LittleEndian.Uint32(subData[off:off+4]))] = true
	}

	if _, err := conn.Write(s.buildAck()); err != nil {
		return fmt.Errorf("replay: sending ACK: %w", err)
	}

	s.addClient(&client{conn: conn, subs: subs})
	s.log.Info("replay: client subscribed", "remote", conn.RemoteAddr(), "record_count", len(subs))
	return nil
}

// rthSize mirrors the REMCON request header size used by pkg/control's
// buildRecord (remcon_id, ticket, tracking_number[16]).
const rthSize = 4 + 4 + 16

// buildAck assembles an NF+DRF REMCON_ACK reply whose record data is a
// 4 byte ticket and a 16 byte tracking number (spec §4.3 "ACK (7501)
// then CONFIG_DATA for config requests").
func (s *Server) buildAck() []byte {
	data := make([]byte, ackRTHSize)
	binary.LittleEndian.PutUint32(data[0:4], 1) // ticket
	copy(data[4:], []byte("REPLAYSERVERACK\x00"))

	size := uint32(frame.DRFSize + len(data))
	drf := frame.DataRecordFrame{
		ProtocolVersion: frame.DRFProto,
		Offset:          frame.DRFSize,
		SyncPattern:     frame.DRFSync,
		Size:            size,
		Time:            frame.TimestampFrom7K(time.Now()),
		RecordVersion:   1,
		RecordTypeID:    uint32(frame.RTRemconACK),
	}
	body := append(drf.Encode(), data...)

	nf := frame.NetworkFrame{
		ProtocolVersion: frame.NFProto,
		Offset:          frame.NFSize,
		TotalPackets:    1,
		TotalRecords:    1,
		PacketSize:      uint32(frame.NFSize) + size,
		TotalSize:       size,
	}
	return append(nf.Encode(), body...)
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = append(s.clients, c)
}

// snapshotClients returns the current client list under lock, for the
// producer to iterate without holding the mutex across network writes.
func (s *Server) snapshotClients() []*client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*client(nil), s.clients...)
}

// sweep removes clients marked dead since the last frame (spec §9 "Fan-out
// client list ... mark, then sweep").
func (s *Server) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.clients[:0]
	for _, c := range s.clients {
		if c.dead {
			c.conn.Close()
			continue
		}
		live = append(live, c)
	}
	s.clients = live
}

// Run reads source until it reports EOF (returning nil) or any other read
// error (returned wrapped), pacing frames against their embedded 7K
// timestamps and fanning each one out to its subscribed clients (spec §8
// scenario 6 "Replay pacing").
func (s *Server) Run(source *sevenk.Parser) error {
	var prevTS time.Time
	haveTS := false

	for {
		fr, status, err := source.Next(0)
		if status == sevenk.StatusEOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("replay: reading capture: %w", err)
		}
		if status != sevenk.StatusOK {
			continue
		}

		ts := fr.DRF.Time.Time()
		if haveTS {
			s.pace(ts.Sub(prevTS))
		}
		haveTS = true
		prevTS = ts

		s.fanOut(fr)
		s.sweep()
	}
}

// pace sleeps the gap between consecutive frame timestamps, clamped to
// [minDelay, maxDelay] (spec §8 scenario 6: "max-delay clamps the 2.0 s
// gap"). Adopting a plain consecutive-delta clamp rather than the
// original's system/stream baseline-drift absorption: the latter does not
// reproduce the scenario's literal 0, 1.0, 1.5 s delivery offsets, the
// former does.
func (s *Server) pace(gap time.Duration) {
	time.Sleep(ClampDelay(gap, s.minDelay, s.maxDelay))
}

// ClampDelay clamps gap to [minDelay, maxDelay], the delivery-pacing rule
// spec §8 scenario 6 tests for. Exported so the UDP/serial publisher
// drivers under cmd/ can pace against the same rule without a TCP replay
// Server.
func ClampDelay(gap, minDelay, maxDelay time.Duration) time.Duration {
	if gap < minDelay {
		gap = minDelay
	}
	if gap > maxDelay {
		gap = maxDelay
	}
	if gap < 0 {
		gap = 0
	}
	return gap
}

// fanOut delivers fr to every subscribed client concurrently, one pond job
// per client, so one slow subscriber's write does not serialize behind
// another's; the producer still waits for this frame's deliveries to finish
// before reading the next one, preserving per-client ordering while
// shortening the worst-case wait to the slowest single write rather than
// their sum (spec §5 "an alitto/pond pool for per-client transmit").
func (s *Server) fanOut(fr frame.Frame) {
	s.seq++
	wire := s.encodeForWire(fr)
	recordType := frame.RecordTypeID(fr.DRF.RecordTypeID)

	var wg sync.WaitGroup
	for _, c := range s.snapshotClients() {
		if !c.subs[recordType] {
			continue
		}
		c := c
		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()
			if _, err := c.conn.Write(wire); err != nil {
				c.dead = true
			}
		})
	}
	wg.Wait()
}

// encodeForWire rebuilds the NF wrapper around fr's DRF+data with a fresh
// sequence number, the way emu7k.c's publish loop re-synthesizes `nf->*`
// fields for every frame sent regardless of whether the source capture was
// itself NF-wrapped.
func (s *Server) encodeForWire(fr frame.Frame) []byte {
	return fr.EncodeWire(s.seq)
}
