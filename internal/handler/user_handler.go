package handler

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"mentorlink/internal/pkg/errs"
	"mentorlink/internal/pkg/resp"
)

// HandleGetMe returns the caller's profile. A stored image key is replaced with a
// short-lived download URL when object storage is configured.
func HandleGetMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := callerOrReject(w, r)
		if !ok {
			return
		}

		profile, err := deps.Users.FindUser(r.Context(), id.UserID)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to load profile of authenticated user")
			resp.RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
			return
		}

		key := profile.ProfileImage
		if deps.Images != nil && key != "" && !strings.HasPrefix(key, "http://") && !strings.HasPrefix(key, "https://") {
			url, err := deps.Images.PresignDownload(r.Context(), key)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Str("object_key", key).Msg("Failed to presign profile image")
			} else {
				profile.ProfileImage = url
			}
		}

		resp.RespondSuccess(w, r, profile)
	}
}
