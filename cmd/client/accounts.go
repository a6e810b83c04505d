package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/google/subcommands"
	"golang.org/x/term"

	"github.com/driftmail/driftmail/pkg/rest/client"
	"github.com/driftmail/driftmail/pkg/rest/model"
)

type accountsCmd struct {
	address  string
	imapHost string
	imapPort int
	smtpHost string
	smtpPort int
	username string
}

func (*accountsCmd) Name() string {
	return "accounts"
}

func (*accountsCmd) Synopsis() string {
	return "list accounts, or register one with -address"
}

func (*accountsCmd) Usage() string {
	return `accounts [-address <addr> -imap-host <host> ...]:
	list registered accounts; with -address, register a new account.
	The password is read from the terminal.
`
}

func (a *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&a.address, "address", "", "mail address to register")
	f.StringVar(&a.imapHost, "imap-host", "", "IMAP server host")
	f.IntVar(&a.imapPort, "imap-port", 993, "IMAP server port")
	f.StringVar(&a.smtpHost, "smtp-host", "", "SMTP server host")
	f.IntVar(&a.smtpPort, "smtp-port", 465, "SMTP server port")
	f.StringVar(&a.username, "username", "", "login name, defaults to address")
}

func (a *accountsCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	c, err := client.New(baseURL())
	if err != nil {
		return fatal("Couldn't build client", err)
	}

	if a.address == "" {
		accounts, err := c.Accounts(ctx)
		if err != nil {
			return fatal("REST call failed", err)
		}
		for _, acct := range accounts {
			fmt.Printf("%s\t%s\n", acct.ID, acct.Address)
		}
		return subcommands.ExitSuccess
	}

	if a.imapHost == "" || a.smtpHost == "" {
		return usage("imap-host and smtp-host required to register an account")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", a.address)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fatal("Couldn't read password", err)
	}

	created, err := c.AddAccount(ctx, &model.JSONNewAccountV1{
		JSONAccountV1: model.JSONAccountV1{
			Address:  a.address,
			IMAPHost: a.imapHost,
			IMAPPort: a.imapPort,
			SMTPHost: a.smtpHost,
			SMTPPort: a.smtpPort,
			Username: a.username,
		},
		Password: string(password),
	})
	if err != nil {
		return fatal("REST call failed", err)
	}
	fmt.Println(created.ID)

	return subcommands.ExitSuccess
}
