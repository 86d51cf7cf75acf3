package main

import (
	"flag"
	"os"

	"github.com/m-lab/go/rtx"
	"github.com/robertodauria/speedprobe/client"
	"github.com/robertodauria/speedprobe/client/config"
	"github.com/robertodauria/speedprobe/client/emitter"
	"go.uber.org/zap"
)

var (
	flagConfig      = flag.String("config", "", "Path to a YAML config file")
	flagDownloadURL = flag.String("download-url", "", "Download URL to try before the fixed fallbacks")
	flagUploadURL   = flag.String("upload-url", "", "Upload target URL")
	flagDuration    = flag.Duration("duration", config.DefaultDuration, "Duration of each session")
	flagChunkSize   = flag.Int64("chunk-size", 0, "Upload chunk size in bytes (0 = default)")
	flagJSON        = flag.Bool("json", false, "Emit JSON event envelopes instead of log lines")
	flagNoDownload  = flag.Bool("no-download", false, "Skip the download session")
	flagNoUpload    = flag.Bool("no-upload", false, "Skip the upload session")
)

func main() {
	flag.Parse()

	logger, err := zap.NewProduction()
	rtx.Must(err, "cannot initialize logger")
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	cfg := config.NewDefault()
	if *flagConfig != "" {
		cfg, err = config.LoadFile(*flagConfig)
		rtx.Must(err, "cannot load config file")
	}
	if *flagDownloadURL != "" {
		cfg.DownloadURL = *flagDownloadURL
	}
	if *flagUploadURL != "" {
		cfg.UploadURL = *flagUploadURL
	}
	if *flagDuration != config.DefaultDuration {
		cfg.Duration = *flagDuration
	}
	if *flagChunkSize != 0 {
		cfg.ChunkSize = *flagChunkSize
	}

	c := client.NewWithConfig(cfg)
	if *flagJSON {
		c.SetEmitter(&emitter.WireEmitter{W: os.Stdout})
	}

	if !*flagNoDownload {
		c.Download()
	}
	if !*flagNoUpload {
		c.Upload()
	}
}
