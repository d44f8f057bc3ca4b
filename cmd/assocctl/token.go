package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"association/internal/auth"
)

func newTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Member access tokens",
	}

	var uid, role string
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign an access and refresh token for a member",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer e.Close()

			pair, err := auth.NewIssuer(e.cfg.JWTIssuer, e.cfg.JWTSigningKey, e.cfg.AccessTTL, e.cfg.RefreshTTL).Issue(uid, role)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(pair)
		},
	}
	issue.Flags().StringVar(&uid, "uid", "", "Member uid (required)")
	issue.Flags().StringVar(&role, "role", auth.RoleMember, "member, admin or superadmin")
	_ = issue.MarkFlagRequired("uid")

	cmd.AddCommand(issue)
	return cmd
}
