package web

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/manager"
	"github.com/driftmail/driftmail/pkg/msghub"
)

// Context is passed into every request handler function.
type Context struct {
	Vars       map[string]string
	MsgHub     *msghub.Hub
	Manager    manager.Manager
	RootConfig *config.Root
	WebConfig  config.Web
}

// Close the Context (currently does nothing).
func (c *Context) Close() {
	// Do nothing
}

// NewContext returns a Context for the given HTTP Request.
func NewContext(req *http.Request) (*Context, error) {
	vars := mux.Vars(req)
	ctx := &Context{
		Vars:       vars,
		MsgHub:     msgHub,
		Manager:    mgr,
		RootConfig: rootConfig,
		WebConfig:  rootConfig.Web,
	}
	return ctx, nil
}
