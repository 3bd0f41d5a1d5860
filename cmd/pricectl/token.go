package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/backoffice-pricing/internal/auth"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		user     string
		ttl      time.Duration
		secret   string
		issuer   string
		audience string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local API calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if user == "" {
				return errors.New("--user is required")
			}
			v, err := auth.NewVerifier(auth.Config{Secret: secret, Issuer: issuer, Audience: audience})
			if err != nil {
				return err
			}
			token, err := v.Issue(user, ttl)
			if err != nil {
				return err
			}
			root.logger.Debug().Str("user_id", user).Dur("ttl", ttl).Msg("token issued")
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "subject (acting user id)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (defaults to $JWT_SECRET)")
	cmd.Flags().StringVar(&issuer, "issuer", os.Getenv("JWT_ISSUER"), "token issuer")
	cmd.Flags().StringVar(&audience, "audience", os.Getenv("JWT_AUDIENCE"), "token audience")
	return cmd
}
