package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"twquote/internal/config"
	"twquote/internal/logging"
	"twquote/internal/provider/cache"
)

// cachesweep deletes expired and unreadable entries from the file cache.
// The server never does this itself; run it from cron or a job scheduler.
func main() {
	var (
		cfgPath string
		dir     string
		ttlSec  int
	)
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json or config.yaml (optional)")
	flag.StringVar(&dir, "dir", "", "cache directory (defaults to cache.dir)")
	flag.IntVar(&ttlSec, "ttl", 0, "entry ttl seconds (defaults to cache.ttl_sec)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	if dir == "" {
		dir = cfg.Cache.Dir
	}
	ttl := cfg.CacheTTL()
	if ttlSec > 0 {
		ttl = time.Duration(ttlSec) * time.Second
	}

	f, err := cache.NewFile(dir, ttl, log)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("open cache")
	}
	n, err := f.Sweep(time.Now())
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("sweep")
	}
	log.Info().Str("dir", dir).Dur("ttl", ttl).Int("removed", n).Msg("done")
}
