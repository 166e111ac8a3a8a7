package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coopfund/backoffice/internal/app/domain/user"
)

const adminPasswordEnv = "BACKOFFICE_ADMIN_PASSWORD"

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage back-office users",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE:  runUserCreate,
	}
	create.Flags().String("name", "", "Display name (required)")
	create.Flags().String("email", "", "Login email (required)")
	create.Flags().String("password", "", "Initial password; defaults to $"+adminPasswordEnv)
	create.Flags().String("role", string(user.RoleStaff), "admin, staff or viewer")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")
	cmd.AddCommand(create)

	ensure := &cobra.Command{
		Use:   "ensure-admin",
		Short: "Create the first admin when no user exists",
		Args:  cobra.NoArgs,
		RunE:  runEnsureAdmin,
	}
	ensure.Flags().String("name", "Administrator", "Display name")
	ensure.Flags().String("email", "", "Login email (required)")
	ensure.Flags().String("password", "", "Password; defaults to $"+adminPasswordEnv)
	_ = ensure.MarkFlagRequired("email")
	cmd.AddCommand(ensure)
	return cmd
}

func passwordFlag(cmd *cobra.Command) (string, error) {
	pw, _ := cmd.Flags().GetString("password")
	if pw == "" {
		pw = os.Getenv(adminPasswordEnv)
	}
	if pw == "" {
		return "", errors.New("password required: pass --password or set " + adminPasswordEnv)
	}
	return pw, nil
}

func runUserCreate(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	roleName, _ := cmd.Flags().GetString("role")
	role := user.Role(roleName)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", role)
	}
	pw, err := passwordFlag(cmd)
	if err != nil {
		return err
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	node, err := openNode(cmd.Context(), e)
	if err != nil {
		return err
	}
	defer node.Shutdown(context.Background())

	u, err := node.App().Users.Create(cmd.Context(), name, email, pw, role)
	if err != nil {
		return err
	}
	if e.out.JSON {
		return e.out.Result(u, nil)
	}
	e.out.Success(fmt.Sprintf("created %s %s (%s)", u.Role, u.Email, u.ID))
	return nil
}

func runEnsureAdmin(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	pw, err := passwordFlag(cmd)
	if err != nil {
		return err
	}

	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	node, err := openNode(cmd.Context(), e)
	if err != nil {
		return err
	}
	defer node.Shutdown(context.Background())

	created, err := node.App().Users.EnsureAdmin(cmd.Context(), name, email, pw)
	if err != nil {
		return err
	}
	if created {
		e.out.Success("created admin " + email)
	} else {
		e.out.Info("users already exist; nothing to do")
	}
	return nil
}
