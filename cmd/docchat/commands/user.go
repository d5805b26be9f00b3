package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/docchat-go/internal/auth"
	"github.com/54b3r/docchat-go/internal/logging"
	"github.com/54b3r/docchat-go/internal/store"
)

// NewUserCmd constructs the `docchat user` command group.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage docchat accounts",
	}
	cmd.AddCommand(newUserCreateCmd(), newUserListCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var email, password, role string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		Long: `Create a user account directly in the store. Use this to bootstrap the
first admin; later accounts can be created through the admin API.

Examples:
  docchat user create --email admin@example.com --password 's3cret' --role admin
  echo 's3cret' | docchat user create --email ops@example.com --password-stdin`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			if passwordStdin {
				p, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("user create: %w", err)
				}
				password = p
			}
			r := store.Role(role)
			switch {
			case email == "" || !strings.Contains(email, "@"):
				return fmt.Errorf("user create: a valid --email is required")
			case password == "":
				return fmt.Errorf("user create: --password or --password-stdin is required")
			case !r.Valid():
				return fmt.Errorf("user create: --role must be admin or user")
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("user create: %w", err)
			}

			st, err := openStore(log)
			if err != nil {
				return fmt.Errorf("user create: %w", err)
			}
			defer func() { _ = st.Close() }()

			u, err := st.CreateUser(ctx, email, hash, r)
			if errors.Is(err, store.ErrDuplicate) {
				return fmt.Errorf("user create: %s is already registered", email)
			}
			if err != nil {
				return fmt.Errorf("user create: %w", err)
			}
			log.Info("user created", slog.String("user_id", u.ID), slog.String("role", string(u.Role)))
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", u.Email, u.Role, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (login name)")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from the first line of stdin")
	cmd.Flags().StringVar(&role, "role", string(store.RoleUser), "Account role: admin or user")

	return cmd
}

func newUserListCmd() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List user accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, err := openStore(logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("user list: %w", err)
			}
			defer func() { _ = st.Close() }()

			users, err := st.ListUsers(ctx, search)
			if err != nil {
				return fmt.Errorf("user list: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tACTIVE\tCREATED")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", u.ID, u.Email, u.Role, u.IsActive, u.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "Filter by email substring")

	return cmd
}

// readPassword returns the first line of r without its line ending.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
