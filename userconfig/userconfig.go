// Package userconfig parses and validates the YAML configuration the
// embedding process hands to the server: where to put the store, where to
// bind the socket, and the I/O budgets for serving.
package userconfig

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alecthomas/units"
	gounits "github.com/docker/go-units"
	yaml "gopkg.in/yaml.v2"

	"github.com/yash101/scramjet/storage"
)

// Default I/O and sizing limits applied when the config file leaves them
// out.
const (
	defaultTimeout         = 5 * time.Second
	defaultMaxPayload      = int64(64 * units.MiB)
	defaultWriteBufferSize = int64(4 * units.GiB)
	defaultMaxOpenFiles    = 500
)

// Meta represents all current config options that the application can
// use, i.e., after validation and parsing
type Meta struct {
	Server  Server  `yaml:"server"`
	Storage Storage `yaml:"storage"`
}

// Server contains config options for the listening socket and per-call
// I/O behavior
type Server struct {
	SocketPath   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Largest key or value length accepted on the wire
	MaxPayload int64
}

// Storage contains config options for the embedded ordered store
type Storage struct {
	DirPath         string
	WriteBufferSize int64
	MaxOpenFiles    int
}

// UnmarshalYAML parses the user-provided server section, returning any
// parsing errors. Durations use Go's duration syntax ("5s").
func (s *Server) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	if err := unmarshal(&v); err != nil {
		return fmt.Errorf("can't parse the server config: %v", err)
	}

	s.SocketPath = v["socketPath"]

	rt, ok := v["readTimeout"]
	if !ok {
		rt = "0s"
	}
	prt, err := time.ParseDuration(rt)
	if err != nil {
		return fmt.Errorf("can't parse the read timeout as a duration: %v", err)
	}
	s.ReadTimeout = prt

	wt, ok := v["writeTimeout"]
	if !ok {
		wt = "0s"
	}
	pwt, err := time.ParseDuration(wt)
	if err != nil {
		return fmt.Errorf("can't parse the write timeout as a duration: %v", err)
	}
	s.WriteTimeout = pwt

	if mp, ok := v["maxPayload"]; ok {
		pmp, err := gounits.RAMInBytes(mp)
		if err != nil {
			return fmt.Errorf("can't parse the maximum payload size: %v", err)
		}
		s.MaxPayload = pmp
	}

	return nil
}

// CheckAndSetDefaults validates s and either returns a copy of s with
// default settings applied or returns an error due to an invalid
// configuration
func (s *Server) CheckAndSetDefaults() (Server, error) {
	if s.SocketPath == "" {
		return Server{}, errors.New(
			"user-provided config does not include a socket path",
		)
	}

	if s.ReadTimeout == 0 {
		s.ReadTimeout = defaultTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = defaultTimeout
	}
	if s.MaxPayload == 0 {
		s.MaxPayload = defaultMaxPayload
	}
	if s.MaxPayload < 0 {
		return Server{}, errors.New("the maximum payload size must be positive")
	}

	return *s, nil
}

// UnmarshalYAML parses the user-provided storage section. Sizes accept
// human-readable binary suffixes ("4GiB").
func (s *Storage) UnmarshalYAML(unmarshal func(interface{}) error) error {
	v := make(map[string]string)
	if err := unmarshal(&v); err != nil {
		return fmt.Errorf("can't parse the storage config: %v", err)
	}

	s.DirPath = v["dbDir"]

	if wb, ok := v["writeBufferSize"]; ok {
		pwb, err := gounits.RAMInBytes(wb)
		if err != nil {
			return fmt.Errorf("can't parse the write buffer size: %v", err)
		}
		s.WriteBufferSize = pwb
	}

	mo, ok := v["maxOpenFiles"]
	if !ok {
		mo = "0"
	}
	pmo, err := strconv.Atoi(mo)
	if err != nil {
		return fmt.Errorf("can't parse the open-file ceiling as an integer")
	}
	s.MaxOpenFiles = pmo

	return nil
}

// CheckAndSetDefaults validates s and either returns a copy of s with
// default settings applied or returns an error due to an invalid
// configuration
func (s *Storage) CheckAndSetDefaults() (Storage, error) {
	if s.DirPath == "" {
		return Storage{}, errors.New(
			"user-provided config does not include a storage directory",
		)
	}

	if s.WriteBufferSize == 0 {
		s.WriteBufferSize = defaultWriteBufferSize
	}
	if s.WriteBufferSize < 0 {
		return Storage{}, errors.New("the write buffer size must be positive")
	}
	if s.MaxOpenFiles == 0 {
		s.MaxOpenFiles = defaultMaxOpenFiles
	}

	return *s, nil
}

// KVConfig converts the validated storage section into the store's own
// config type.
func (s *Storage) KVConfig() *storage.KVConfig {
	return &storage.KVConfig{
		DirPath:         s.DirPath,
		WriteBufferSize: s.WriteBufferSize,
		MaxOpenFiles:    s.MaxOpenFiles,
	}
}

// CheckAndSetDefaults validates m and either returns a copy of m with
// default settings applied or returns an error due to an invalid
// configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{}

	s, err := m.Server.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Server = s

	st, err := m.Storage.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Storage = st

	return c, nil
}

// Parse generates usable configurations from possibly arbitrary user
// input. An error indicates a problem with parsing or validation. The
// Reader r can be either JSON or YAML.
func Parse(r io.Reader) (*Meta, error) {
	var m Meta
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	if m.Server == (Server{}) {
		return &Meta{}, errors.New("must include a \"server\" section")
	}
	if m.Storage == (Storage{}) {
		return &Meta{}, errors.New("must include a \"storage\" section")
	}

	return &m, nil
}
