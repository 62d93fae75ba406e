package handler

import (
	"mentorlink/internal/app/identity"
	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/realtime"
	"mentorlink/internal/app/storage"
	"mentorlink/internal/app/user"
	"mentorlink/internal/configs"
)

// AppDeps carries everything the HTTP layer needs.
type AppDeps struct {
	Config   *configs.AppConfig
	Hub      *realtime.Hub
	Relay    *messaging.Service
	Verifier *identity.Verifier
	Users    user.Directory

	// Images is nil when S3 is not configured.
	Images storage.ImageSigner
}
