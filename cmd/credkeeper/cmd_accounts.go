package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"credkeeper/internal/store"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage stored accounts",
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	RunE:  runAccountsList,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add [name] [email] [credential]",
	Short: "Add an account with an already-known credential",
	Args:  cobra.ExactArgs(3),
	RunE:  runAccountsAdd,
}

var accountsSwitchCmd = &cobra.Command{
	Use:   "switch [account-id]",
	Short: "Make an account current",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsSwitch,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove [account-id]",
	Short: "Remove an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountsRemove,
}

var accountsExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export accounts without credentials",
	Long: `Writes the sanitized account list as JSON. Credentials are never
part of the export, so the file is safe to share or archive.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountsExport,
}

var accountsUsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Poll live usage figures for every account",
	RunE:  runAccountsUsage,
}

var accountsImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import accounts from an export file",
	Long: `Reads a previously exported account list. Imported accounts carry no
credential; run 'credkeeper login' after switching to one. Accounts whose
email already exists are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccountsImport,
}

func init() {
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsSwitchCmd)
	accountsCmd.AddCommand(accountsRemoveCmd)
	accountsCmd.AddCommand(accountsExportCmd)
	accountsCmd.AddCommand(accountsImportCmd)
	accountsCmd.AddCommand(accountsUsageCmd)
}

func openAccounts() (*store.AccountManager, error) {
	o, err := buildOrchestrator(loadConfig())
	if err != nil {
		return nil, err
	}
	return o.Accounts(), nil
}

func runAccountsList(cmd *cobra.Command, args []string) error {
	accounts, err := openAccounts()
	if err != nil {
		return err
	}

	list := accounts.List()
	if len(list) == 0 {
		fmt.Println("No accounts stored. Run 'credkeeper login' to add one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tCURRENT\tLAST USED")
	for _, acc := range list {
		current := ""
		if acc.IsCurrent {
			current = "*"
		}
		lastUsed := "-"
		if !acc.LastUsedAt.IsZero() {
			lastUsed = acc.LastUsedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", acc.ID, acc.Name, acc.Email, current, lastUsed)
	}
	return w.Flush()
}

func runAccountsAdd(cmd *cobra.Command, args []string) error {
	accounts, err := openAccounts()
	if err != nil {
		return err
	}

	acc, err := accounts.AddAccount(args[0], args[1], args[2])
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateCredential):
			return errors.New("an account with this exact credential already exists")
		case errors.Is(err, store.ErrDuplicateEmail):
			return fmt.Errorf("an account with email %s already exists", args[1])
		}
		return err
	}

	fmt.Printf("Account %q added (%s).\n", acc.Name, acc.ID)
	return nil
}

func runAccountsSwitch(cmd *cobra.Command, args []string) error {
	accounts, err := openAccounts()
	if err != nil {
		return err
	}
	if err := accounts.SwitchTo(args[0]); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return fmt.Errorf("no account with ID %s", args[0])
		}
		return err
	}
	fmt.Printf("Switched to account %s.\n", args[0])
	return nil
}

func runAccountsRemove(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	o, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	if err := o.Logout(args[0]); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return fmt.Errorf("no account with ID %s", args[0])
		}
		return err
	}

	if current := o.Accounts().Current(); current != nil {
		fmt.Printf("Account removed. %q is now current.\n", current.Name)
	} else {
		fmt.Println("Account removed. No accounts remain.")
	}
	return nil
}

func runAccountsExport(cmd *cobra.Command, args []string) error {
	accounts, err := openAccounts()
	if err != nil {
		return err
	}

	data, err := accounts.ExportJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o600); err != nil {
		return fmt.Errorf("write export: %w", err)
	}

	fmt.Printf("Exported %d account(s) to %s (credentials omitted).\n", accounts.Len(), args[0])
	return nil
}

func runAccountsUsage(cmd *cobra.Command, args []string) error {
	o, err := buildOrchestrator(loadConfig())
	if err != nil {
		return err
	}

	refreshed, err := o.RefreshAllUsage(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Refreshed usage for %d account(s).\n", refreshed)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tREQUESTS\tLIMIT\tFETCHED")
	for _, acc := range o.Accounts().List() {
		if acc.Usage == nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", acc.Name, acc.Email)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			acc.Name, acc.Email, acc.Usage.Requests, acc.Usage.Limit,
			acc.Usage.FetchedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runAccountsImport(cmd *cobra.Command, args []string) error {
	accounts, err := openAccounts()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	imported, err := accounts.ImportAccounts(data)
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d account(s). Imported accounts have no credential; log in after switching to one.\n", imported)
	return nil
}
