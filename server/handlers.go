package server

import (
	"bytes"
	"errors"

	"github.com/yash101/scramjet/storage"
	"github.com/yash101/scramjet/wire"
)

// getOne serves a point lookup. A miss is a NOT_FOUND status, an engine
// failure is an ERR record; neither closes the connection.
func (w *worker) getOne() error {
	key, err := w.readLP(w.key)
	if err != nil {
		return err
	}

	value, done, gerr := w.db.Get(key)
	if errors.Is(gerr, storage.ErrNotFound) {
		w.hdr[0] = wire.StatusNotFound
		return w.sock.WriteFull(w.hdr[:1], w.cfg.WriteTimeout)
	}
	if gerr != nil {
		w.logger.Error().Err(gerr).Msg("point lookup failed")
		return w.writeErrRecord(gerr)
	}
	defer done.Close()

	h := w.hdr[:5]
	h[0] = wire.StatusOK
	wire.PutUint32(h[1:5], uint32(len(value)))
	return w.sock.WriteGather([][]byte{h, value}, w.cfg.WriteTimeout)
}

// getN serves a forward scan of up to n entries starting at the first key
// >= the requested one. If the scan comes up short the stream ends with an
// ERR record carrying the scanner's status, so clients either count to n
// or stop at the error record.
func (w *worker) getN() error {
	key, err := w.readLP(w.key)
	if err != nil {
		return err
	}
	n, err := w.readLen()
	if err != nil {
		return err
	}

	sc, serr := w.db.NewScanner()
	if serr != nil {
		w.logger.Error().Err(serr).Msg("can't open a scanner")
		return w.writeErrRecord(serr)
	}
	defer sc.Close()

	sent := 0
	for ok := sc.SeekGE(key); sent < n && ok; ok = sc.Next() {
		if err := w.writeEntry(sc.Key(), sc.Value()); err != nil {
			return err
		}
		sent++
	}

	if sent < n {
		if serr := sc.Err(); serr != nil {
			w.logger.Error().Err(serr).Msg("scan stopped early")
			return w.writeErrRecord(serr)
		}
		return w.writeErrRecord(nil)
	}
	return nil
}

// getBetween serves an inclusive range scan [k0, k1], always ending the
// stream with a zero-length-key, zero-length-value terminator record.
func (w *worker) getBetween() error {
	k0, err := w.readLP(w.key)
	if err != nil {
		return err
	}
	k1, err := w.readLP(w.val)
	if err != nil {
		return err
	}

	sc, serr := w.db.NewScanner()
	if serr != nil {
		// There is no error record in this stream's shape; end it.
		w.logger.Error().Err(serr).Msg("can't open a scanner")
		return w.writeRangeTerminator()
	}
	defer sc.Close()

	for ok := sc.SeekGE(k0); ok && bytes.Compare(sc.Key(), k1) <= 0; ok = sc.Next() {
		if err := w.writeEntry(sc.Key(), sc.Value()); err != nil {
			return err
		}
	}
	if serr := sc.Err(); serr != nil {
		w.logger.Error().Err(serr).Msg("range scan stopped early")
	}

	return w.writeRangeTerminator()
}

// putOne serves a single write. The reply is two bytes: a status and a
// reserved zero.
func (w *worker) putOne() error {
	key, err := w.readLP(w.key)
	if err != nil {
		return err
	}
	value, err := w.readLP(w.val)
	if err != nil {
		return err
	}

	h := w.hdr[:2]
	h[1] = 0
	if perr := w.db.Put(key, value); perr != nil {
		w.logger.Error().Err(perr).Msg("write failed")
		h[0] = wire.StatusErr
	} else {
		h[0] = wire.StatusOK
	}
	return w.sock.WriteFull(h, w.cfg.WriteTimeout)
}

// putMulti consumes a stream of records until the zero-length-key
// terminator, writing each to the store. Store failures are logged and
// skipped; the stream keeps its promised shape either way, so one bad
// record can't desynchronize the connection.
func (w *worker) putMulti() error {
	for {
		klen, err := w.readLen()
		if err != nil {
			return err
		}
		if klen == 0 {
			break
		}
		if err := w.checkLen(klen); err != nil {
			return err
		}

		key := w.key.Grab(klen)
		if err := w.sock.ReadFull(key, w.cfg.ReadTimeout); err != nil {
			return err
		}

		value, err := w.readLP(w.val)
		if err != nil {
			return err
		}

		if perr := w.db.Put(key, value); perr != nil {
			w.logger.Warn().Err(perr).Msg("dropping a record in a multi-write")
		}
	}

	w.hdr[0] = wire.StatusOK
	return w.sock.WriteFull(w.hdr[:1], w.cfg.WriteTimeout)
}

// putBulk consumes the same stream shape as putMulti, but appends the
// records to a sorted table file and ingests it after the terminator. Any
// bulk failure (out-of-order keys included) still drains the stream, so
// the reply lands where the client expects it.
func (w *worker) putBulk() error {
	bw, ingestErr := w.db.NewBulkWriter()
	if ingestErr != nil {
		w.logger.Error().Err(ingestErr).Msg("can't start a bulk load")
	}

	for {
		klen, err := w.readLen()
		if err != nil {
			return err
		}
		if klen == 0 {
			break
		}
		if err := w.checkLen(klen); err != nil {
			return err
		}

		key := w.key.Grab(klen)
		if err := w.sock.ReadFull(key, w.cfg.ReadTimeout); err != nil {
			return err
		}

		value, err := w.readLP(w.val)
		if err != nil {
			return err
		}

		if ingestErr == nil {
			if aerr := bw.Add(key, value); aerr != nil {
				w.logger.Error().Err(aerr).Msg("bulk load failed")
				ingestErr = aerr
			}
		}
	}

	if bw != nil {
		if ingestErr == nil {
			ingestErr = bw.Finish()
			if ingestErr != nil {
				w.logger.Error().Err(ingestErr).Msg("bulk ingestion failed")
			}
		} else {
			bw.Discard()
		}
	}

	if ingestErr != nil {
		return w.writeErrRecord(ingestErr)
	}
	w.hdr[0] = wire.StatusOK
	return w.sock.WriteFull(w.hdr[:1], w.cfg.WriteTimeout)
}
