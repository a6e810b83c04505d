package main

import (
	"context"
	"flag"

	"github.com/google/subcommands"

	"github.com/driftmail/driftmail/pkg/rest/client"
)

type syncCmd struct {
	full bool
}

func (*syncCmd) Name() string {
	return "sync"
}

func (*syncCmd) Synopsis() string {
	return "queue a sync pass for an account"
}

func (*syncCmd) Usage() string {
	return `sync [-full] <account>:
	queue an incremental sync; -full refetches the whole window
`
}

func (s *syncCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.full, "full", false, "force a full sync")
}

func (s *syncCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	account := f.Arg(0)
	if account == "" {
		return usage("account required")
	}

	c, err := client.New(baseURL())
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	if err := c.SyncNow(ctx, account, s.full); err != nil {
		return fatal("REST call failed", err)
	}

	return subcommands.ExitSuccess
}
