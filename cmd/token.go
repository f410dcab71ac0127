package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"docrag/internal/auth"
	"docrag/internal/quota"
)

// tokenCMD mints a bearer token signed with JWT_SECRET, for local use against serve.
func tokenCMD() *cobra.Command {
	var plan string
	var ttl time.Duration

	token := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a signed bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v, err := auth.NewVerifier(cfg.JWTSecret)
			if err != nil {
				return err
			}
			tok, err := v.GenerateToken(args[0], quota.ParsePlan(plan), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	token.Flags().StringVar(&plan, "plan", string(quota.PlanFree), "plan tier: free, pro or premium")
	token.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return token
}
