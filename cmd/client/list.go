package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/driftmail/driftmail/pkg/rest/client"
)

type listCmd struct {
	folder  string
	label   string
	search  string
	snoozed bool
}

func (*listCmd) Name() string {
	return "list"
}

func (*listCmd) Synopsis() string {
	return "list conversations for an account"
}

func (*listCmd) Usage() string {
	return `list [-folder <name>] [-label <name>] [-search <text>] [-snoozed] <account>:
	list conversations, newest first
`
}

func (l *listCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&l.folder, "folder", "", "only show this folder")
	f.StringVar(&l.label, "label", "", "only show this label")
	f.StringVar(&l.search, "search", "", "free text search")
	f.BoolVar(&l.snoozed, "snoozed", false, "show the snoozed view")
}

func (l *listCmd) Execute(
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

	// Get list
	convs, err := c.ListConversations(ctx, account, client.ConversationQuery{
		Folder:  l.folder,
		Label:   l.label,
		Search:  l.search,
		Snoozed: l.snoozed,
	})
	if err != nil {
		return fatal("REST call failed", err)
	}
	for _, conv := range convs {
		read := " "
		if !conv.IsRead {
			read = "*"
		}
		fmt.Printf("%s %s\t%s\t%s\t%s\n", read, conv.ID,
			conv.LastDate.Local().Format("2006-01-02 15:04"),
			strings.Join(conv.Participants, ","), conv.Subject)
	}

	return subcommands.ExitSuccess
}
