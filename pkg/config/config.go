// Package config wraps the process environment configuration.
package config

import (
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	prefix      = "driftmail"
	tableFormat = `Driftmail is configured via the environment. The following environment
variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

var (
	// Version of this build, set by main
	Version = ""

	// BuildDate for this build, set by main
	BuildDate = ""
)

// Root wraps all other configurations.
type Root struct {
	LogLevel string `required:"true" default:"info" desc:"debug, info, warn, or error"`
	Web      Web
	IMAP     IMAP
	SMTP     SMTP
	Storage  Storage
	Queue    Queue
	Sync     Sync
}

// Web contains the HTTP API server configuration.
type Web struct {
	Addr           string `required:"true" default:"0.0.0.0:9100" desc:"Web server IP4 host:port"`
	BasePath       string `desc:"Base path prefix for API URLs"`
	MonitorHistory int    `required:"true" default:"30" desc:"Buffered events replayed to new monitor clients"`
}

// IMAP contains the mail protocol adapter configuration.
type IMAP struct {
	DialTimeout    time.Duration `required:"true" default:"30s" desc:"Connect timeout to remote IMAP servers"`
	CommandTimeout time.Duration `required:"true" default:"30s" desc:"Per-command network timeout"`
	FetchWindow    int           `required:"true" default:"50" desc:"Messages fetched per folder on first sync"`
}

// SMTP contains the outbound send configuration.
type SMTP struct {
	Timeout time.Duration `required:"true" default:"30s" desc:"Connect and send timeout to remote SMTP servers"`
}

// Storage contains the local mail store configuration.
type Storage struct {
	Type    string            `required:"true" default:"memory" desc:"Store type: memory or sqlite"`
	Params  map[string]string `desc:"Store specific parameters, e.g. path"`
	CredKey string            `desc:"Hex encoded AES-256 key for credentials at rest"`
}

// Queue contains the background job queue configuration.
type Queue struct {
	MaxAttempts int           `required:"true" default:"3" desc:"Attempts before a job is dead-lettered"`
	BackoffBase time.Duration `required:"true" default:"5s" desc:"Base duration for exponential retry backoff"`
	Workers     int           `required:"true" default:"4" desc:"Concurrent workers per job pool"`
	Poll        time.Duration `required:"true" default:"250ms" desc:"Idle queue poll interval"`
}

// Sync contains the sync orchestrator configuration.
type Sync struct {
	Interval  time.Duration `required:"true" default:"2m" desc:"Incremental sync period per account"`
	AutoReply string        `desc:"Body of the once-per-sender automatic reply; empty disables"`
}

// Process loads and parses configuration from the environment.
func Process() (*Root, error) {
	c := &Root{}
	err := envconfig.Process(prefix, c)
	return c, err
}

// Usage prints out the envconfig usage to Stderr.
func Usage() {
	tabs := tabwriter.NewWriter(os.Stderr, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(prefix, &Root{}, tabs, tableFormat); err != nil {
		log.Fatalf("Unable to parse env config: %v", err)
	}
	tabs.Flush()
}
