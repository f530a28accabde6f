package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/vuai/assistant/auth"
)

func init() {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Long:  "Create a user with a bcrypt-hashed password. Roles: student, faculty, admin, visitor, worker, alumni.",
		Args:  cobra.NoArgs,
		RunE:  runUserAdd,
	}
	addCmd.Flags().StringP("username", "u", "", "Username (required)")
	addCmd.Flags().StringP("password", "p", "", "Password (required)")
	addCmd.Flags().StringP("role", "r", "student", "Role")
	_ = addCmd.MarkFlagRequired("username")
	_ = addCmd.MarkFlagRequired("password")

	userCmd.AddCommand(addCmd)
	RootCmd.AddCommand(userCmd)
}

func runUserAdd(cmd *cobra.Command, _ []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	role, _ := cmd.Flags().GetString("role")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	st := openStore(ctx, cfg.Store, logger)
	defer st.Close()

	svc := auth.NewService(st, auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL))
	user, err := svc.Register(ctx, username, password, role)
	if err != nil {
		return err
	}

	b, err := json.Marshal(user)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
