package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/driftmail/driftmail/pkg/rest/client"
	"github.com/driftmail/driftmail/pkg/rest/model"
)

type sendCmd struct {
	from    string
	to      string
	subject string
	at      string
	cancel  string
}

func (*sendCmd) Name() string {
	return "send"
}

func (*sendCmd) Synopsis() string {
	return "send a message, body read from stdin"
}

func (*sendCmd) Usage() string {
	return `send -to <addr>[,<addr>] [-subject <text>] [-at <RFC3339>] <account>:
	queue a message for delivery; -at schedules it for later
send -cancel <job-id> <account>:
	recall a scheduled send that has not fired
`
}

func (s *sendCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.from, "from", "", "sender address, defaults to the account address")
	f.StringVar(&s.to, "to", "", "comma separated recipients")
	f.StringVar(&s.subject, "subject", "", "message subject")
	f.StringVar(&s.at, "at", "", "RFC3339 time to send at")
	f.StringVar(&s.cancel, "cancel", "", "job ID of a scheduled send to recall")
}

func (s *sendCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	account := f.Arg(0)
	if account == "" {
		return usage("account required")
	}

	// Setup rest client
	c, err := client.New(baseURL())
	if err != nil {
		return fatal("Couldn't build client", err)
	}

	if s.cancel != "" {
		if err := c.CancelScheduledSend(ctx, s.cancel); err != nil {
			return fatal("REST call failed", err)
		}
		return subcommands.ExitSuccess
	}

	if s.to == "" {
		return usage("to required")
	}
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fatal("Couldn't read message body", err)
	}

	msg := &model.JSONSendRequestV1{}
	msg.AccountID = account
	msg.From = s.from
	msg.To = strings.Split(s.to, ",")
	msg.Subject = s.subject
	msg.Text = string(body)

	var jobID string
	if s.at != "" {
		at, err := time.Parse(time.RFC3339, s.at)
		if err != nil {
			return usage("at must be RFC3339, e.g. 2026-09-01T09:00:00Z")
		}
		msg.At = at
		jobID, err = c.ScheduleSend(ctx, msg)
		if err != nil {
			return fatal("REST call failed", err)
		}
	} else {
		jobID, err = c.Send(ctx, msg)
		if err != nil {
			return fatal("REST call failed", err)
		}
	}
	fmt.Println(jobID)

	return subcommands.ExitSuccess
}
