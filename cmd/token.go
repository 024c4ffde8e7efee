package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	subjectFlag string
	ttlFlag     time.Duration

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the admin API",
		Long:  longToken,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := adminAuth().GenerateToken(subjectFlag, ttlFlag)

			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)

			return nil
		},
	}
)

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&subjectFlag, "subject", "admin", "Token subject")
	tokenCmd.Flags().DurationVar(&ttlFlag, "ttl", 24*time.Hour, "How long the token stays valid")
}

var longToken = `
Sign an HS256 token with admin.jwt_secret. The admin API only checks tokens
when that secret is set.
`
