package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dreadnought-systems/airwatch/internal/auth"
	"github.com/dreadnought-systems/airwatch/internal/config"
	"github.com/dreadnought-systems/airwatch/internal/model"
	"github.com/dreadnought-systems/airwatch/internal/store"
)

var seedAdminEmail string

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Bootstrap the first admin operator account",
	Long: `Authenticate requires an existing operator account, and region CRUD
requires an admin. seed-admin creates the first admin account directly
against the store, without going through the HTTP surface, and refuses to
run if any operator account already exists.`,
	RunE: runSeedAdmin,
}

func init() {
	seedAdminCmd.Flags().StringVar(&seedAdminEmail, "email", "", "email for the new admin account (required)")
}

func runSeedAdmin(_ *cobra.Command, _ []string) error {
	if seedAdminEmail == "" {
		return fmt.Errorf("--email is required")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	count, err := st.CountOperators(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("refusing to seed: %d operator account(s) already exist", count)
	}

	credential, err := promptCredential()
	if err != nil {
		return err
	}

	verifier, err := auth.HashCredential(credential)
	if err != nil {
		return err
	}

	op, err := st.CreateOperator(ctx, seedAdminEmail, verifier, model.RoleAdmin)
	if err != nil {
		return err
	}

	fmt.Printf("created admin operator %d (%s)\n", op.ID, op.Email)
	return nil
}

func promptCredential() (string, error) {
	fmt.Print("credential: ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
