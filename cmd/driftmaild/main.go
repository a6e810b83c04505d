// main is the driftmail daemon launcher
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"expvar"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/imap"
	"github.com/driftmail/driftmail/pkg/mail"
	"github.com/driftmail/driftmail/pkg/manager"
	"github.com/driftmail/driftmail/pkg/msghub"
	"github.com/driftmail/driftmail/pkg/queue"
	"github.com/driftmail/driftmail/pkg/rest"
	"github.com/driftmail/driftmail/pkg/secure"
	"github.com/driftmail/driftmail/pkg/server/web"
	"github.com/driftmail/driftmail/pkg/smtp"
	"github.com/driftmail/driftmail/pkg/storage"
	"github.com/driftmail/driftmail/pkg/storage/mem"
	"github.com/driftmail/driftmail/pkg/storage/sqlite"
	msync "github.com/driftmail/driftmail/pkg/sync"
	"github.com/driftmail/driftmail/pkg/worker"
)

var (
	// version contains the build version number, populated during linking.
	version = "undefined"

	// date contains the build date, populated during linking.
	date = "undefined"
)

func init() {
	// Server uptime for the status endpoint.
	startTime := time.Now()
	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(startTime) / time.Second
	}))

	// Goroutine count for the status endpoint.
	expvar.Publish("goroutines", expvar.Func(func() interface{} {
		return runtime.NumGoroutine()
	}))

	// Register storage implementations.
	storage.Constructors["memory"] = mem.New
	storage.Constructors["sqlite"] = sqlite.New
}

func main() {
	// Command line flags.
	help := flag.Bool("help", false, "Displays help on flags and env variables.")
	pidfile := flag.String("pidfile", "", "Write our PID into the specified file.")
	logfile := flag.String("logfile", "stderr", "Write out log into the specified file.")
	logjson := flag.Bool("logjson", false, "Logs are written in JSON format.")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: driftmaild [options]")
		flag.PrintDefaults()
	}
	flag.Parse()
	if *help {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "")
		config.Usage()
		return
	}
	// Process configuration.
	config.Version = version
	config.BuildDate = date
	conf, err := config.Process()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	// Logger setup.
	closeLog, err := openLog(conf.LogLevel, *logfile, *logjson)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Log error: %v\n", err)
		os.Exit(1)
	}
	startupLog := log.With().Str("phase", "startup").Logger()
	// Setup signal handler.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	// Initialize logging.
	startupLog.Info().Str("version", config.Version).Str("buildDate", config.BuildDate).
		Msg("Driftmail starting")
	// Write pidfile if requested.
	if *pidfile != "" {
		pidf, err := os.Create(*pidfile)
		if err != nil {
			startupLog.Fatal().Err(err).Str("path", *pidfile).Msg("Failed to create pidfile")
		}
		fmt.Fprintf(pidf, "%v\n", os.Getpid())
		if err := pidf.Close(); err != nil {
			startupLog.Fatal().Err(err).Str("path", *pidfile).Msg("Failed to close pidfile")
		}
	}
	// Configure internal services.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	shutdownChan := make(chan bool)
	var store storage.Store
	var jobs queue.Queue
	if conf.Storage.Type == "sqlite" {
		// The store and the durable queue share one database handle so
		// writes serialize on a single connection.
		db, err := sqlite.Open(conf.Storage.Params["path"])
		if err != nil {
			removePIDFile(*pidfile)
			startupLog.Fatal().Err(err).Str("module", "storage").Msg("Fatal storage error")
		}
		store = sqlite.NewOnDB(db)
		jobs, err = queue.NewSQLQueue(db)
		if err != nil {
			removePIDFile(*pidfile)
			startupLog.Fatal().Err(err).Str("module", "queue").Msg("Fatal queue error")
		}
	} else {
		store, err = storage.FromConfig(conf.Storage)
		if err != nil {
			removePIDFile(*pidfile)
			startupLog.Fatal().Err(err).Str("module", "storage").Msg("Fatal storage error")
		}
		jobs = queue.NewMemQueue()
	}
	credKey := conf.Storage.CredKey
	if credKey == "" {
		// Sealed credentials will not survive a restart with a random key.
		startupLog.Info().Msg("Generating random storage.credkey")
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			startupLog.Fatal().Err(err).Msg("Failed to generate credentials key")
		}
		credKey = hex.EncodeToString(buf)
	}
	keeper, err := secure.NewKeeper(credKey)
	if err != nil {
		removePIDFile(*pidfile)
		startupLog.Fatal().Err(err).Str("module", "secure").Msg("Invalid credentials key")
	}
	msgHub := msghub.New(conf.Web.MonitorHistory)
	go msgHub.Start(rootCtx)
	// Sync engine and workers talk IMAP/SMTP through these adapters.
	syncDial := func(a *mail.Account, password string) (msync.Adapter, error) {
		return imap.Dial(a, password, conf.IMAP)
	}
	remoteDial := func(a *mail.Account, password string) (worker.Remote, error) {
		return imap.Dial(a, password, conf.IMAP)
	}
	engine := msync.NewEngine(store, msgHub, syncDial, conf.IMAP)
	sender := smtp.NewSender(conf.SMTP)
	workers := worker.New(store, jobs, msgHub, engine, sender, keeper, remoteDial, conf.Sync)
	pool := queue.NewPool(jobs, conf.Queue)
	workers.Register(pool)
	if err := pool.Start(rootCtx); err != nil {
		removePIDFile(*pidfile)
		startupLog.Fatal().Err(err).Str("module", "queue").Msg("Failed to start worker pool")
	}
	// Start periodic sync scheduler.
	scheduler := msync.NewScheduler(conf.Sync, store, jobs, shutdownChan)
	scheduler.Start()
	// Start HTTP server.
	mmanager := &manager.Service{Store: store, Jobs: jobs, Keeper: keeper}
	web.Initialize(conf, shutdownChan, mmanager, msgHub)
	rest.SetupRoutes(web.Router.PathPrefix(apiPrefix(conf.Web.BasePath)).Subrouter())
	go web.Start(rootCtx)
	// Loop forever waiting for signals or shutdown channel.
signalLoop:
	for {
		select {
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGINT:
				// Shutdown requested
				log.Info().Str("phase", "shutdown").Str("signal", "SIGINT").
					Msg("Received SIGINT, shutting down")
				close(shutdownChan)
			case syscall.SIGTERM:
				// Shutdown requested
				log.Info().Str("phase", "shutdown").Str("signal", "SIGTERM").
					Msg("Received SIGTERM, shutting down")
				close(shutdownChan)
			}
		case <-shutdownChan:
			rootCancel()
			break signalLoop
		}
	}
	// Wait for active jobs to finish.
	go timedExit(*pidfile)
	pool.Join()
	scheduler.Join()
	if err := store.Close(); err != nil {
		log.Error().Str("phase", "shutdown").Err(err).Msg("Failed to close store")
	}
	removePIDFile(*pidfile)
	closeLog()
}

// apiPrefix mounts the API under the configured base path.
func apiPrefix(basePath string) string {
	if basePath == "" {
		return "/api/"
	}
	return "/" + strings.Trim(basePath, "/") + "/api/"
}

// openLog configures zerolog output, returns func to close logfile.
func openLog(level string, logfile string, json bool) (close func(), err error) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		return nil, fmt.Errorf("log level %q not one of: debug, info, warn, error", level)
	}
	close = func() {}
	var w io.Writer
	color := runtime.GOOS != "windows"
	switch logfile {
	case "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		logf, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return nil, err
		}
		bw := bufio.NewWriter(logf)
		w = bw
		color = false
		close = func() {
			_ = bw.Flush()
			_ = logf.Close()
		}
	}
	if json {
		log.Logger = log.Output(w)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !color,
			TimeFormat: "2006-01-02 15:04:05.000",
		})
	}
	return close, nil
}

// removePIDFile removes the PID file if created.
func removePIDFile(pidfile string) {
	if pidfile != "" {
		if err := os.Remove(pidfile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove %q: %v\n", pidfile, err)
		}
	}
}

// timedExit allows a limited time for shutdown before forcing exit.
func timedExit(pidfile string) {
	time.Sleep(15 * time.Second)
	log.Error().Str("phase", "shutdown").Msg("Clean shutdown took too long, forcing exit")
	removePIDFile(pidfile)
	os.Exit(0)
}
