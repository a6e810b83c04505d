package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"strconv"

	"github.com/google/subcommands"
	"github.com/gorilla/websocket"

	"github.com/driftmail/driftmail/pkg/rest/model"
)

type watchCmd struct {
	account string
}

func (*watchCmd) Name() string {
	return "watch"
}

func (*watchCmd) Synopsis() string {
	return "stream monitor events"
}

func (*watchCmd) Usage() string {
	return `watch [-account <id>]:
	print sync and send events as they happen; recent history replays first
`
}

func (w *watchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&w.account, "account", "", "only show this account")
}

func (w *watchCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	uri := "ws://" + net.JoinHostPort(*host, strconv.FormatUint(uint64(*port), 10)) +
		"/api/v1/monitor/events"
	if w.account != "" {
		uri += "/" + w.account
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, uri, nil)
	if err != nil {
		return fatal("Couldn't connect", err)
	}
	defer conn.Close()

	for {
		event := &model.JSONMonitorEventV1{}
		if err := conn.ReadJSON(event); err != nil {
			return fatal("Connection closed", err)
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", event.Date.Local().Format("15:04:05"),
			event.Variant, event.AccountID, event.ConversationID)
	}
}
