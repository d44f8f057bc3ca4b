package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"association/internal/attendance"
	"association/internal/auth"
	"association/internal/identity"
	"association/internal/store"
)

func newMemberCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage member profiles",
	}
	cmd.AddCommand(newMemberUpsertCommand(), newMemberStatusCommand())
	return cmd
}

func newMemberUpsertCommand() *cobra.Command {
	var m attendance.Member
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update a member",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch m.Role {
			case auth.RoleMember, auth.RoleAdmin, auth.RoleSuperAdmin:
			default:
				return fmt.Errorf("unknown role %q", m.Role)
			}
			e, err := openEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.records.UpsertMember(cmd.Context(), m); err != nil {
				return err
			}
			e.log.Info("member saved", zap.String("uid", m.UID), zap.String("role", m.Role))
			return nil
		},
	}
	cmd.Flags().StringVar(&m.UID, "uid", "", "Member uid (required)")
	cmd.Flags().StringVar(&m.MemberID, "member-id", "", "Membership number")
	cmd.Flags().StringVar(&m.Name, "name", "", "Given name")
	cmd.Flags().StringVar(&m.Surname, "surname", "", "Surname")
	cmd.Flags().StringVar(&m.Role, "role", auth.RoleMember, "member, admin or superadmin")
	_ = cmd.MarkFlagRequired("uid")
	return cmd
}

func newMemberStatusCommand() *cobra.Command {
	var uid, status string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Block or unblock a member",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := attendance.AccountStatus(status)
			if s != attendance.AccountActive && s != attendance.AccountBlocked {
				return fmt.Errorf("status must be active or blocked, got %q", status)
			}
			e, err := openEnv(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.records.SetMemberStatus(cmd.Context(), uid, s); err != nil {
				return err
			}

			redisClient := store.NewRedis(e.cfg.RedisAddr)
			defer redisClient.Close()
			provider := identity.NewProvider(e.records, redisClient.Client, e.cfg.StatusCacheTTL, e.log)
			if err := provider.Invalidate(cmd.Context(), uid); err != nil {
				e.log.Warn("status cache not invalidated; it clears on expiry",
					zap.Duration("ttl", e.cfg.StatusCacheTTL), zap.Error(err))
			}
			e.log.Info("member status changed", zap.String("uid", uid), zap.String("status", status))
			return nil
		},
	}
	cmd.Flags().StringVar(&uid, "uid", "", "Member uid (required)")
	cmd.Flags().StringVar(&status, "set", "", "active or blocked (required)")
	_ = cmd.MarkFlagRequired("uid")
	_ = cmd.MarkFlagRequired("set")
	return cmd
}
