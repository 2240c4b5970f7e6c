// Command tokenctl issues and revokes bearer tokens against the server's
// database. It reads the same config file and -d/-s/-t flags as the server.
//
//	tokenctl -d "$DSN" -s "$SECRET" -n alice     issue a token for account alice
//	tokenctl -d "$DSN" -x <token-id>             revoke a token
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/flagx"
	"github.com/dmitrijs2005/tasksync/internal/server"
	"github.com/dmitrijs2005/tasksync/internal/server/config"
	"github.com/dmitrijs2005/tasksync/internal/server/services"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "tokenctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg := config.LoadConfig()

	var issue, revoke string
	fs := flag.NewFlagSet("tokenctl", flag.ContinueOnError)
	fs.StringVar(&issue, "n", "", "issue a token for this account name")
	fs.StringVar(&revoke, "x", "", "revoke the token with this id")
	if err := fs.Parse(flagx.FilterArgs(args, []string{"-n", "-x"})); err != nil {
		return err
	}

	if (issue == "") == (revoke == "") {
		return fmt.Errorf("exactly one of -n or -x is required")
	}
	if cfg.DatabaseDSN == "" {
		return fmt.Errorf("a database DSN (-d) is required")
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	m, err := server.OpenRepositoryManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()

	as := services.NewAuthService(m, cfg)

	if revoke != "" {
		if err := as.RevokeToken(ctx, revoke); err != nil {
			return err
		}
		fmt.Println("revoked", revoke)
		return nil
	}

	t, err := as.IssueToken(ctx, issue)
	if err != nil {
		return err
	}
	fmt.Println("account:", t.AccountID)
	fmt.Println("token id:", t.TokenID)
	if t.ExpiresAt != nil {
		fmt.Println("expires:", t.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println("token:", t.Token)
	return nil
}
