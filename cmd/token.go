package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mentorlink/internal/app/user"
	"mentorlink/internal/pkg/auth/jwt"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed credential for a user (development helper)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user-id")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		if !user.Role(role).Valid() {
			return fmt.Errorf("invalid role %q (want %s or %s)", role, user.RoleMentor, user.RoleMentee)
		}

		token, err := jwt.GenerateToken(userID, role, cfg.JWTSecret, ttl)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("user-id", "", "subject of the credential")
	tokenCmd.Flags().String("role", string(user.RoleMentee), "mentor or mentee")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "credential lifetime")
	_ = tokenCmd.MarkFlagRequired("user-id")
}
