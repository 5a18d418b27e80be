package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boddenberg/listas-backoffice-go/internal/domain"
	"github.com/boddenberg/listas-backoffice-go/internal/infra/postgres"
	"github.com/boddenberg/listas-backoffice-go/internal/service"
)

type adminOptions struct {
	username string
	email    string
	document string
	password string
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage platform administrators",
	}

	var opts adminOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a root admin (role 1) account",
		Long: `Create a root admin account directly in the database.

Public signup only creates customers, so the first admin of a fresh
installation is bootstrapped here.

Example:
  backofficectl admin create --email root@example.com --password s3cret --username root`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminCreate(cmd, opts)
		},
	}
	create.Flags().StringVar(&opts.username, "username", "admin", "display name")
	create.Flags().StringVar(&opts.email, "email", "", "login email (required)")
	create.Flags().StringVar(&opts.document, "document", "00000000000", "CPF or CNPJ, digits only")
	create.Flags().StringVar(&opts.password, "password", "", "initial password, at least 6 characters (required)")
	_ = create.MarkFlagRequired("email")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func runAdminCreate(cmd *cobra.Command, opts adminOptions) error {
	ctx := cmd.Context()

	email := strings.ToLower(strings.TrimSpace(opts.email))
	if email == "" {
		return errors.New("--email is required")
	}
	if len(opts.password) < 6 {
		return errors.New("--password must have at least 6 characters")
	}

	db, err := postgres.New(ctx, databaseURL, 2)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()
	store := postgres.NewStore(db)

	_, err = store.GetClientByEmail(ctx, email)
	var notFound *domain.ErrNotFound
	switch {
	case err == nil:
		return fmt.Errorf("a client with email %s already exists", email)
	case !errors.As(err, &notFound):
		return fmt.Errorf("lookup email: %w", err)
	}

	hash, err := service.HashPassword(opts.password)
	if err != nil {
		return err
	}

	admin, err := store.CreateClient(ctx, &domain.Client{
		Username:     strings.TrimSpace(opts.username),
		Document:     opts.document,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "admin created: id=%d email=%s\n", admin.ID, admin.Email)
	return nil
}
