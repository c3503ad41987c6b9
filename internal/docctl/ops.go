package docctl

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	jwttoken "docverify/internal/jwt_token"
	"docverify/internal/platform/database"
	"docverify/internal/platform/logger"
	"docverify/migrations"
	"docverify/pkg/platform/privacy"
)

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Show how a source address and User-Agent are stored in the audit log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		src := privacy.ScrubSource(scrubFlags.ip, scrubFlags.userAgent)
		cmd.Printf("ip:         %s\n", src.IP())
		cmd.Printf("user_agent: %s\n", src.UserAgent())
		if scrubFlags.text != "" {
			cmd.Printf("text:       %s\n", privacy.ScrubFreeText(scrubFlags.text))
		}
		return nil
	},
}

var scrubFlags struct {
	ip        string
	userAgent string
	text      string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a local deployment",
	Long: `Signs a short-lived access token with AUTH_JWT_SECRET. Intended for
development and smoke tests; production tokens come from the identity provider.`,
	RunE: runToken,
}

var tokenFlags struct {
	subject string
	roles   []string
	ttl     time.Duration
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations to DATABASE_URL",
	RunE:  runMigrate,
}

func init() {
	scrubCmd.Flags().StringVar(&scrubFlags.ip, "ip", "", "Source address")
	scrubCmd.Flags().StringVar(&scrubFlags.userAgent, "user-agent", "", "User-Agent header")
	scrubCmd.Flags().StringVar(&scrubFlags.text, "text", "", "Free text, such as a revocation reason")

	tokenCmd.Flags().StringVar(&tokenFlags.subject, "sub", "", "Token subject")
	tokenCmd.Flags().StringSliceVar(&tokenFlags.roles, "role", nil, "Role to grant (issuer, auditor); repeatable")
	tokenCmd.Flags().DurationVar(&tokenFlags.ttl, "ttl", time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("sub")

	rootCmd.AddCommand(scrubCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(migrateCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	secret := os.Getenv("AUTH_JWT_SECRET")
	if secret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is not set")
	}
	issuer := os.Getenv("AUTH_JWT_ISSUER")
	if issuer == "" {
		issuer = "docverify"
	}
	if len(tokenFlags.roles) == 0 {
		return fmt.Errorf("at least one --role is required")
	}
	tok, err := jwttoken.NewJWTService(secret, issuer).GenerateAccessToken(strings.TrimSpace(tokenFlags.subject), tokenFlags.roles, tokenFlags.ttl)
	if err != nil {
		return err
	}
	cmd.Println(tok)
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	pool, err := database.New(ctx, database.DefaultConfig(url))
	if err != nil {
		return err
	}
	defer pool.Close()
	log := logger.NewWithWriter(cmd.ErrOrStderr(), os.Getenv("LOG_LEVEL"))
	if err := database.Migrate(ctx, pool.DB(), migrations.FS, log); err != nil {
		return err
	}
	cmd.Println("migrations applied")
	return nil
}
