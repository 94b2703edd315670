package e2e

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/units"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yash101/scramjet/server"
	"github.com/yash101/scramjet/storage"
)

// Env is one running server instance plus the store behind it.
type Env struct {
	SocketPath string
	DB         *storage.PebbleDB

	srv *server.Server
}

// NewEnv opens a Pebble store in a temp directory and serves it on a
// uniquely named socket. Everything is torn down with the test.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := storage.KVConfig{
		DirPath:         t.TempDir(),
		WriteBufferSize: int64(64 * units.MiB),
		MaxOpenFiles:    500,
	}
	db, err := storage.NewPebbleDB(&conf, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	// Sockets bind in the system temp dir rather than t.TempDir, whose
	// nested paths can exceed the UNIX socket path limit
	sock := filepath.Join(os.TempDir(), "scrj-"+uuid.NewString()[:8]+".sock")

	srv := server.New(server.Config{
		SocketPath:   sock,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxPayload:   int64(16 * units.MiB),
	}, db, zerolog.Nop())

	go srv.ListenAndServe()

	t.Cleanup(func() {
		srv.Shutdown()
		if err := db.Close(); err != nil {
			t.Error(err)
		}
	})

	for i := 0; i < 200; i++ {
		if _, err := os.Stat(sock); err == nil {
			return &Env{SocketPath: sock, DB: db, srv: srv}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server socket never appeared")
	return nil
}

// Dial opens a client connection to the environment's socket.
func (e *Env) Dial(t *testing.T) net.Conn {
	t.Helper()
	c, err := net.Dial("unix", e.SocketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}
