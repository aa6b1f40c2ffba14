package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// isoLocal is the zone-less ISO-8601 layout older cache files were written in.
const isoLocal = "2006-01-02T15:04:05.999999999"

// record is the on-disk layout of one cache file.
type record struct {
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// File keeps one JSON document per key under Dir.
type File struct {
	Dir string
	TTL time.Duration
	Now func() time.Time
	Log zerolog.Logger
}

// NewFile creates dir if needed.
func NewFile(dir string, ttl time.Duration, log zerolog.Logger) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &File{
		Dir: dir,
		TTL: ttl,
		Now: time.Now,
		Log: log.With().Str("component", "cache").Logger(),
	}, nil
}

func (f *File) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(f.Dir, key+".json"), nil
}

func (f *File) Get(key string, dst any) bool {
	p, err := f.path(key)
	if err != nil {
		f.Log.Warn().Err(err).Msg("cache get")
		return false
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.Log.Warn().Err(err).Str("key", key).Msg("read cache file")
		}
		return false
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		f.Log.Warn().Err(err).Str("key", key).Msg("parse cache file")
		return false
	}
	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		f.Log.Warn().Err(err).Str("key", key).Msg("parse cache timestamp")
		return false
	}
	if !fresh(ts, f.Now(), f.TTL) {
		return false
	}
	if !decode(rec.Data, dst) {
		f.Log.Warn().Str("key", key).Msg("decode cached value")
		return false
	}
	return true
}

func (f *File) Put(key string, v any) {
	if err := f.put(key, v); err != nil {
		f.Log.Warn().Err(err).Str("key", key).Msg("write cache file")
	}
}

func (f *File) put(key string, v any) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	b, err := json.MarshalIndent(record{Timestamp: f.Now().Format(time.RFC3339Nano), Data: data}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tmp, err := os.CreateTemp(f.Dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Sweep removes files that are expired at now or cannot be read back. It is
// only used by the maintenance command; the read path never deletes.
func (f *File) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(f.Dir)
	if err != nil {
		return 0, fmt.Errorf("list cache dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		p := filepath.Join(f.Dir, e.Name())
		if !f.expired(p, now) {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.Log.Warn().Err(err).Str("file", e.Name()).Msg("remove cache file")
			continue
		}
		removed++
	}
	return removed, nil
}

func (f *File) expired(p string, now time.Time) bool {
	b, err := os.ReadFile(p)
	if err != nil {
		return false
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return true
	}
	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return true
	}
	return !fresh(ts, now, f.TTL)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(isoLocal, s, time.Local)
}
