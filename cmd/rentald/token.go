package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"rentalcore/internal/identity"
	"rentalcore/pkg/domain"
)

func newTokens(ttl time.Duration) (*identity.Tokens, error) {
	key := os.Getenv("RENTALCORE_JWT_KEY")
	if key == "" {
		return nil, errors.New("RENTALCORE_JWT_KEY is required")
	}
	return identity.NewTokens([]byte(key), ttl)
}

func newTokenCmd() *cobra.Command {
	var (
		user string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a signed session token for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			session := domain.Session{UserID: user, Role: domain.Role(role)}
			if !session.Valid() {
				return fmt.Errorf("--user and --role (landlord|tenant) are required")
			}
			tokens, err := newTokens(ttl)
			if err != nil {
				return err
			}
			token, err := tokens.Issue(session)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id carried by the token")
	cmd.Flags().StringVar(&role, "role", "", "landlord or tenant")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
