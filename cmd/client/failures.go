package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/driftmail/driftmail/pkg/rest/client"
)

type failuresCmd struct{}

func (*failuresCmd) Name() string {
	return "failures"
}

func (*failuresCmd) Synopsis() string {
	return "list sends that exhausted their retries"
}

func (*failuresCmd) Usage() string {
	return `failures:
	list permanently failed sends with their last error
`
}

func (*failuresCmd) SetFlags(f *flag.FlagSet) {}

func (*failuresCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c, err := client.New(baseURL())
	if err != nil {
		return fatal("Couldn't build client", err)
	}

	fails, err := c.SendFailures(ctx)
	if err != nil {
		return fatal("REST call failed", err)
	}
	for _, fail := range fails {
		fmt.Printf("%s\t%s\tattempts=%d\t%s\n",
			fail.JobID, fail.AccountID, fail.Attempts, fail.LastError)
	}

	return subcommands.ExitSuccess
}
