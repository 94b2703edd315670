package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/objstorage/objstorageprovider"
	"github.com/cockroachdb/pebble/sstable"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"
)

// disableWAL bypasses the engine's write-ahead log. Unlogged writes are
// lost on a crash, so this stays off unless the deployment can re-ingest.
const disableWAL = false

// memTablesPerDB spreads the configured write buffer over this many
// memtables; WriteBufferSize bounds the total, matching how the engine
// rotates memtables rather than keeping one giant one.
const memTablesPerDB = 4

// PebbleDB implements OrderedKV on top of Pebble, an embedded LSM store.
type PebbleDB struct {
	db     *pebble.DB
	logger zerolog.Logger
}

// pebbleLogger routes the engine's own event log through zerolog.
type pebbleLogger struct {
	logger zerolog.Logger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

// NewPebbleDB opens the store at conf.DirPath, creating it if missing. It
// is up to the caller to close the store with Close().
func NewPebbleDB(conf *KVConfig, logger zerolog.Logger) (*PebbleDB, error) {
	opts := &pebble.Options{
		MemTableSize:                uint64(conf.WriteBufferSize) / memTablesPerDB,
		MemTableStopWritesThreshold: memTablesPerDB,
		MaxOpenFiles:                conf.MaxOpenFiles,
		DisableWAL:                  disableWAL,
		Logger:                      pebbleLogger{logger: logger},
	}

	db, err := pebble.Open(conf.DirPath, opts)
	if err != nil {
		return nil, fmt.Errorf("can't open the store at %v: %w", conf.DirPath, err)
	}

	return &PebbleDB{
		db:     db,
		logger: logger,
	}, nil
}

// Get returns the pinned value for key. The done closer releases the pin;
// until then no allocation or copy is made.
func (p *PebbleDB) Get(key []byte) ([]byte, io.Closer, error) {
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("point lookup failed: %w", err)
	}
	return value, closer, nil
}

// Put stores one entry without forcing a sync; the WAL (when enabled)
// makes the write durable on the engine's own cadence.
func (p *PebbleDB) Put(key, value []byte) error {
	if err := p.db.Set(key, value, pebble.NoSync); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// pebbleScanner adapts a Pebble iterator, which observes the store as of
// its creation, to the Scanner interface.
type pebbleScanner struct {
	it *pebble.Iterator
}

// NewScanner returns a snapshot scanner over the whole keyspace. Bounds
// are enforced by the caller, since the upper bound of a range request is
// inclusive and engine bounds are not.
func (p *PebbleDB) NewScanner() (Scanner, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't open an iterator: %w", err)
	}
	return &pebbleScanner{it: it}, nil
}

func (s *pebbleScanner) SeekGE(key []byte) bool {
	return s.it.SeekGE(key)
}

func (s *pebbleScanner) Next() bool {
	return s.it.Next()
}

func (s *pebbleScanner) Key() []byte {
	return s.it.Key()
}

func (s *pebbleScanner) Value() []byte {
	return s.it.Value()
}

func (s *pebbleScanner) Err() error {
	return s.it.Error()
}

func (s *pebbleScanner) Close() error {
	return s.it.Close()
}

// pebbleBulk streams ascending entries into a fresh sorted table file in
// the system temp directory and ingests it into the store on Finish.
type pebbleBulk struct {
	p     *PebbleDB
	w     *sstable.Writer
	path  string
	count int
}

// NewBulkWriter creates the table file with a timestamp-suffixed name so
// concurrent bulk loads never collide on a path.
func (p *PebbleDB) NewBulkWriter() (BulkWriter, error) {
	path := filepath.Join(
		os.TempDir(),
		fmt.Sprintf("scramjet-bulk-%d.sst", time.Now().UnixNano()),
	)

	f, err := vfs.Default.Create(path)
	if err != nil {
		return nil, fmt.Errorf("can't create the bulk table file: %w", err)
	}

	w := sstable.NewWriter(objstorageprovider.NewFileWritable(f), sstable.WriterOptions{
		TableFormat: p.db.FormatMajorVersion().MaxTableFormat(),
	})

	return &pebbleBulk{
		p:    p,
		w:    w,
		path: path,
	}, nil
}

// Add appends one entry to the table file. The sstable writer itself
// rejects keys that are not strictly greater than their predecessor.
func (b *pebbleBulk) Add(key, value []byte) error {
	if err := b.w.Set(key, value); err != nil {
		return fmt.Errorf("bulk write rejected: %w", err)
	}
	b.count++
	return nil
}

// Finish finalizes the table file and merges it into the store. The temp
// file is removed whether or not ingestion succeeds; the engine links the
// table into its own directory.
func (b *pebbleBulk) Finish() error {
	defer os.Remove(b.path)

	if err := b.w.Close(); err != nil {
		return fmt.Errorf("can't finalize the bulk table file: %w", err)
	}

	// An empty table can't be ingested, and there is nothing to merge.
	if b.count == 0 {
		return nil
	}

	if err := b.p.db.Ingest([]string{b.path}); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	return nil
}

// Discard abandons the bulk load and removes the table file.
func (b *pebbleBulk) Discard() {
	if err := b.w.Close(); err != nil {
		b.p.logger.Debug().Err(err).Msg("closing a discarded bulk table file")
	}
	if err := os.Remove(b.path); err != nil {
		b.p.logger.Warn().Err(err).Str("path", b.path).Msg("can't remove a discarded bulk table file")
	}
}

// Close tears down the store. You should defer this.
func (p *PebbleDB) Close() error {
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("could not close the store: %w", err)
	}
	return nil
}
