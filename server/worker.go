package server

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yash101/scramjet/scratch"
	"github.com/yash101/scramjet/sockio"
	"github.com/yash101/scramjet/storage"
	"github.com/yash101/scramjet/wire"
)

// errOversize reports a request length beyond the configured maximum. It
// is a protocol violation and tears down the connection before any bytes
// are allocated for the payload.
var errOversize = errors.New("length exceeds the configured maximum")

// worker holds the per-connection state for one request loop: the
// buffered socket, scratch buffers for the current request's key and
// value, and a small header area reused by every reply.
type worker struct {
	sock   *sockio.Conn
	db     storage.OrderedKV
	cfg    *Config
	logger zerolog.Logger

	key *scratch.Scratch
	val *scratch.Scratch
	hdr [16]byte
}

func newWorker(sock *sockio.Conn, db storage.OrderedKV, cfg *Config, logger zerolog.Logger) *worker {
	return &worker{
		sock:   sock,
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("peer", sock.RemoteAddr()).Logger(),
		key:    scratch.New(),
		val:    scratch.New(),
	}
}

// run is the per-connection dispatch loop: read an opcode, run its
// handler, repeat. Any error reaching this level is fatal for the
// connection; the caller closes the socket when run returns.
func (w *worker) run() {
	for {
		op, err := w.sock.ReadByte(w.cfg.ReadTimeout)
		if err != nil {
			w.logExit(err)
			return
		}

		switch op {
		case wire.OpGetOne:
			err = w.getOne()
		case wire.OpGetN:
			err = w.getN()
		case wire.OpGetBetween:
			err = w.getBetween()
		case wire.OpPutOne:
			err = w.putOne()
		case wire.OpPutMulti:
			err = w.putMulti()
		case wire.OpPutBulk:
			err = w.putBulk()
		default:
			w.logger.Error().
				Uint8("opcode", op).
				Msg("unknown opcode, closing the connection")
			return
		}

		if err != nil {
			w.logExit(err)
			return
		}
	}
}

// logExit records why the connection is going away. A peer hanging up or a
// shutdown is ordinary and logged quietly, a timeout is a warning, and
// everything else gets error severity.
func (w *worker) logExit(err error) {
	switch {
	case errors.Is(err, sockio.ErrPeerClosed):
		w.logger.Debug().Msg("peer closed the connection")
	case errors.Is(err, sockio.ErrShutdown):
		w.logger.Debug().Msg("connection closed by shutdown")
	case errors.Is(err, sockio.ErrTimeout):
		w.logger.Warn().Msg("connection timed out")
	default:
		w.logger.Error().Err(err).Msg("closing the connection")
	}
}

// readLen reads one u32 length field.
func (w *worker) readLen() (int, error) {
	if err := w.sock.ReadFull(w.hdr[:4], w.cfg.ReadTimeout); err != nil {
		return 0, err
	}
	return int(wire.Uint32(w.hdr[:4])), nil
}

// checkLen enforces the payload ceiling before any allocation happens.
func (w *worker) checkLen(n int) error {
	if int64(n) > w.cfg.MaxPayload {
		return fmt.Errorf("%w: %d bytes", errOversize, n)
	}
	return nil
}

// readLP reads a length-prefixed byte string into s's scratch space. The
// returned slice is valid until the next Grab on s.
func (w *worker) readLP(s *scratch.Scratch) ([]byte, error) {
	n, err := w.readLen()
	if err != nil {
		return nil, err
	}
	if err := w.checkLen(n); err != nil {
		return nil, err
	}

	buf := s.Grab(n)
	if err := w.sock.ReadFull(buf, w.cfg.ReadTimeout); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeEntry emits one scan result as a gathered write of four segments:
// status+klen header, key bytes, vlen, value bytes.
func (w *worker) writeEntry(key, value []byte) error {
	h := w.hdr[:5]
	h[0] = wire.StatusOK
	wire.PutUint32(h[1:5], uint32(len(key)))

	vl := w.hdr[5:9]
	wire.PutUint32(vl, uint32(len(value)))

	return w.sock.WriteGather([][]byte{h, key, vl, value}, w.cfg.WriteTimeout)
}

// writeErrRecord emits an ERR status with a u16-length message. A nil err
// encodes an empty message.
func (w *worker) writeErrRecord(err error) error {
	var msg []byte
	if err != nil {
		msg = []byte(err.Error())
		if len(msg) > 0xffff {
			msg = msg[:0xffff]
		}
	}

	h := w.hdr[:3]
	h[0] = wire.StatusErr
	wire.PutUint16(h[1:3], uint16(len(msg)))

	return w.sock.WriteGather([][]byte{h, msg}, w.cfg.WriteTimeout)
}

// writeRangeTerminator emits the end-of-stream record for a range scan: an
// OK status carrying a zero-length key and zero-length value.
func (w *worker) writeRangeTerminator() error {
	h := w.hdr[:9]
	h[0] = wire.StatusOK
	wire.PutUint32(h[1:5], 0)
	wire.PutUint32(h[5:9], 0)
	return w.sock.WriteFull(h, w.cfg.WriteTimeout)
}
