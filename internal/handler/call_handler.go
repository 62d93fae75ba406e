/*
Package handler provides HTTP handler functions for call room management.

Call rooms are created lazily by the first join on the realtime connection; this
endpoint only hands out a fresh id that both peers can join.
*/
package handler

import (
	"net/http"

	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/logx"
	"mentorlink/internal/pkg/randx"
	"mentorlink/internal/pkg/resp"
)

// CreateCallOutput is the data of POST /api/calls.
type CreateCallOutput struct {
	CallID string `json:"callId"`
}

// HandleCreateCall generates an unused call room id.
func HandleCreateCall(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := callerOrReject(w, r)
		if !ok {
			return
		}

		const maxAttempts = 5
		for attempt := 0; attempt < maxAttempts; attempt++ {
			callID, err := randx.CallID()
			if err != nil {
				logx.Error(err, "Failed to generate call id")
				resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
				return
			}

			if _, exists := deps.Hub.CallRoom(callID); exists {
				continue
			}

			logx.Debug("Issued call id", "call_id", callID, "user_id", id.UserID)
			resp.RespondCreated(w, r, CreateCallOutput{CallID: callID})
			return
		}

		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
	}
}
