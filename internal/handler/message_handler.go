/*
Package handler provides HTTP handler functions for the message endpoints.

Each endpoint maps onto one message relay operation and acts on behalf of the
identity resolved by RequireIdentity.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mentorlink/internal/app/identity"
	"mentorlink/internal/app/messaging"
	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/req"
	"mentorlink/internal/pkg/resp"
)

// SendMessageInput is the body of POST /api/messages.
type SendMessageInput struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// MarkReadOutput is the data of PUT /api/messages/{senderId}/read.
type MarkReadOutput struct {
	Updated int64 `json:"updated"`
}

// callerOrReject returns the authenticated identity or answers 401.
func callerOrReject(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		resp.RespondError(w, r, errs.NewError(errs.ErrMissingCredential))
		return identity.Identity{}, false
	}
	return id, true
}

// HandleListPartners lists the caller's conversation partners, most recent first.
func HandleListPartners(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := callerOrReject(w, r)
		if !ok {
			return
		}

		partners, err := deps.Relay.Partners(r.Context(), id.UserID, id.Role)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, partners)
	}
}

// HandleGetConversation returns the caller's messages with {recipientId}, oldest first.
func HandleGetConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := callerOrReject(w, r)
		if !ok {
			return
		}

		messages, err := deps.Relay.ListConversation(r.Context(), id.UserID, chi.URLParam(r, "recipientId"))
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, messages)
	}
}

// HandleSendMessage persists and relays a message from the caller.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := callerOrReject(w, r)
		if !ok {
			return
		}

		var input SendMessageInput
		if err := req.BindJSON(w, r, &input); err != nil {
			resp.RespondError(w, r, err)
			return
		}

		msg, err := deps.Relay.Send(r.Context(), id, messaging.SendRequest{
			RecipientID: input.RecipientID,
			Content:     input.Content,
		})
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondCreated(w, r, msg)
	}
}

// HandleMarkRead marks every unread message from {senderId} to the caller as read.
func HandleMarkRead(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := callerOrReject(w, r)
		if !ok {
			return
		}

		updated, err := deps.Relay.MarkRead(r.Context(), id.UserID, chi.URLParam(r, "senderId"))
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, MarkReadOutput{Updated: updated})
	}
}
