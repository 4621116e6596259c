package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/semillerodigital/classroomplus/internal/model"
	"github.com/semillerodigital/classroomplus/internal/store"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sign-in sessions",
	}
	cmd.AddCommand(sessionCreateCmd(), sessionRevokeCmd(), sessionCleanupCmd())
	return cmd
}

func sessionCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Store a session for a Google access token and print its token",
		RunE:  runSessionCreate,
	}
	addCommonFlags(cmd)
	addClassroomFlags(cmd)
	f := cmd.Flags()
	f.String("access-token", "", "Google OAuth access token (required)")
	f.String("refresh-token", "", "Google OAuth refresh token")
	f.String("user-id", "", "Google user ID (looked up from the token when empty)")
	f.String("email", "", "User email")
	f.String("name", "", "User display name")
	f.Duration("ttl", store.DefaultSessionTTL, "Session lifetime")

	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func runSessionCreate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	sess := model.AuthSession{
		UserID:               v.GetString("user-id"),
		Email:                v.GetString("email"),
		DisplayName:          v.GetString("name"),
		ProviderToken:        v.GetString("access-token"),
		ProviderRefreshToken: v.GetString("refresh-token"),
	}

	if sess.UserID == "" {
		id := &model.Identity{AccessToken: sess.ProviderToken, RefreshToken: sess.ProviderRefreshToken}
		info, err := clientFactory(v).ForIdentity(cmd.Context(), id).UserInfo(cmd.Context())
		if err != nil {
			return fmt.Errorf("look up token owner: %w", err)
		}
		sess.UserID = info.ID
		if sess.Email == "" {
			sess.Email = info.Email
		}
		if sess.DisplayName == "" {
			sess.DisplayName = info.Name
		}
		slog.Info("resolved token owner", "user_id", info.ID, "email", info.Email)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	token, err := db.CreateAuthSession(sess, v.GetDuration("ttl"))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func sessionRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke TOKEN",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			db, err := store.New(v.GetString("db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			if err := db.DeleteAuthSession(args[0]); err != nil {
				return fmt.Errorf("revoke session: %w", err)
			}
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}

func sessionCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			db, err := store.New(v.GetString("db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()
			n, err := db.CleanupExpiredSessions()
			if err != nil {
				return fmt.Errorf("clean up sessions: %w", err)
			}
			slog.Info("removed expired sessions", "count", n)
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}
