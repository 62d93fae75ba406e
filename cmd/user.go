package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mentorlink/internal/app/user"
	"mentorlink/internal/pkg/logx"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user profiles in the configured store",
}

var userAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create or replace a user profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()

		u := user.User{}
		u.ID, _ = flags.GetString("id")
		u.Name, _ = flags.GetString("name")
		u.Field, _ = flags.GetString("field")
		u.ProfileImage, _ = flags.GetString("image")
		role, _ := flags.GetString("role")
		u.Role = user.Role(role)

		if !u.Role.Valid() {
			return fmt.Errorf("invalid role %q (want %s or %s)", role, user.RoleMentor, user.RoleMentee)
		}

		store, closeStore, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		writer, ok := store.(userWriter)
		if !ok {
			return fmt.Errorf("store driver %q cannot persist users", cfg.StoreDriver)
		}

		if err := writer.UpsertUser(cmd.Context(), u); err != nil {
			return err
		}

		logx.Info("User saved.", "user_id", u.ID, "role", u.Role)
		return nil
	},
}

func init() {
	f := userAddCmd.Flags()
	f.String("id", "", "user id")
	f.String("name", "", "display name")
	f.String("role", string(user.RoleMentee), "mentor or mentee")
	f.String("field", "", "area of expertise or interest")
	f.String("image", "", "profile image object key or URL")
	_ = userAddCmd.MarkFlagRequired("id")
	_ = userAddCmd.MarkFlagRequired("name")

	userCmd.AddCommand(userAddCmd)
}
