// Package rest implements the JSON REST API and the monitor WebSocket.
package rest

import (
	"github.com/gorilla/mux"

	"github.com/driftmail/driftmail/pkg/server/web"
)

// SetupRoutes populates the routes for the REST interface.
func SetupRoutes(r *mux.Router) {
	// API v1
	r.Path("/v1/accounts").Handler(
		web.Handler(AccountListV1)).Name("AccountListV1").Methods("GET")
	r.Path("/v1/accounts").Handler(
		web.Handler(AccountAddV1)).Name("AccountAddV1").Methods("POST")
	r.Path("/v1/accounts/{id}/conversations").Handler(
		web.Handler(ConversationListV1)).Name("ConversationListV1").Methods("GET")
	r.Path("/v1/accounts/{id}/conversations/move").Handler(
		web.Handler(ConversationMoveV1)).Name("ConversationMoveV1").Methods("POST")
	r.Path("/v1/accounts/{id}/conversations/label").Handler(
		web.Handler(ConversationLabelV1)).Name("ConversationLabelV1").Methods("POST")
	r.Path("/v1/accounts/{id}/conversations/unlabel").Handler(
		web.Handler(ConversationUnlabelV1)).Name("ConversationUnlabelV1").Methods("POST")
	r.Path("/v1/accounts/{id}/conversations/read").Handler(
		web.Handler(ConversationReadV1)).Name("ConversationReadV1").Methods("POST")
	r.Path("/v1/accounts/{id}/conversations/unread").Handler(
		web.Handler(ConversationUnreadV1)).Name("ConversationUnreadV1").Methods("POST")
	r.Path("/v1/accounts/{id}/conversations/snooze").Handler(
		web.Handler(ConversationSnoozeV1)).Name("ConversationSnoozeV1").Methods("POST")
	r.Path("/v1/accounts/{id}/conversations/delete").Handler(
		web.Handler(ConversationDeleteV1)).Name("ConversationDeleteV1").Methods("POST")
	r.Path("/v1/accounts/{id}/sync").Handler(
		web.Handler(AccountSyncV1)).Name("AccountSyncV1").Methods("POST")
	r.Path("/v1/accounts/{id}/rules").Handler(
		web.Handler(RuleListV1)).Name("RuleListV1").Methods("GET")
	r.Path("/v1/accounts/{id}/rules").Handler(
		web.Handler(RuleAddV1)).Name("RuleAddV1").Methods("POST")
	r.Path("/v1/send").Handler(
		web.Handler(SendMessageV1)).Name("SendMessageV1").Methods("POST")
	r.Path("/v1/send/schedule").Handler(
		web.Handler(ScheduleSendV1)).Name("ScheduleSendV1").Methods("POST")
	r.Path("/v1/send/schedule/{id}").Handler(
		web.Handler(CancelScheduledSendV1)).Name("CancelScheduledSendV1").Methods("DELETE")
	r.Path("/v1/send/failures").Handler(
		web.Handler(SendFailureListV1)).Name("SendFailureListV1").Methods("GET")
	r.Path("/v1/monitor/events").Handler(
		web.Handler(MonitorEventsV1)).Name("MonitorEventsV1").Methods("GET")
	r.Path("/v1/monitor/events/{id}").Handler(
		web.Handler(MonitorAccountEventsV1)).Name("MonitorAccountEventsV1").Methods("GET")
}
