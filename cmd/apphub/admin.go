package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"github.com/Strob0t/AppHub/internal/adapter/postgres"
	"github.com/Strob0t/AppHub/internal/config"
	"github.com/Strob0t/AppHub/internal/domain/account"
	"github.com/Strob0t/AppHub/internal/service"
)

// runAdmin dispatches admin subcommands (reconcile, list-installed, rename-tenant).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "reconcile":
		return runAdminReconcile(args[1:])
	case "list-installed":
		return runAdminListInstalled(args[1:])
	case "rename-tenant":
		return runAdminRenameTenant(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: apphub admin <command> [options]

Commands:
  reconcile        Reconcile an account's current tenant against its subscriptions
  list-installed   Show the installed-app list an account would see
  rename-tenant    Rename a tenant on behalf of a member account
  help             Show this help message

Output is a table on a terminal and JSON otherwise.

Examples:
  apphub admin reconcile --account 7c0e...
  apphub admin list-installed --account 7c0e... --app 91aa...
  apphub admin rename-tenant --tenant 3f21... --account 7c0e... --name "Acme Corp"
`)
}

// adminDeps holds the services admin commands run against. Events are not
// published from the CLI.
type adminDeps struct {
	listing    *service.ListingService
	reconciler *service.ReconcileService
	subs       *service.SubscriptionService
	tenants    *service.TenantService
}

func loadAdminDeps() (*adminDeps, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	store := postgres.NewStore(pool)
	events := service.NewEventPublisher(nil, nil)
	d := &adminDeps{
		reconciler: service.NewReconcileService(store, events),
		subs:       service.NewSubscriptionService(store, nil, 0),
		tenants:    service.NewTenantService(store, nil, 0, events),
	}
	d.listing = service.NewListingService(store, d.tenants, d.subs, d.reconciler)

	cleanup := func() {
		pool.Close()
	}
	return d, cleanup, nil
}

func runAdminReconcile(args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	accountID := fs.String("account", "", "account id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == "" {
		return errors.New("--account is required")
	}

	d, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	acct, err := d.listing.Account(ctx, *accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	if acct.Role != account.RoleNormal {
		return fmt.Errorf("account %s has role %q; only normal accounts are reconciled", acct.ID, acct.Role)
	}
	subs, err := d.subs.SubscribedTenantIDs(ctx, acct.ID)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	res, err := d.reconciler.Reconcile(ctx, acct.CurrentTenantID, subs)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant %s reconciled: %d created, %d deleted, %d installed\n",
		acct.CurrentTenantID, len(res.Created), len(res.Deleted), len(res.Installed))
	return nil
}

func runAdminListInstalled(args []string) error {
	fs := flag.NewFlagSet("list-installed", flag.ContinueOnError)
	accountID := fs.String("account", "", "account id (required)")
	appID := fs.String("app", "", "only show this app")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *accountID == "" {
		return errors.New("--account is required")
	}

	d, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := context.Background()
	acct, err := d.listing.Account(ctx, *accountID)
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	views, err := d.listing.List(ctx, acct, *appID)
	if err != nil {
		return fmt.Errorf("list installed apps: %w", err)
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // fd fits in int
		return json.NewEncoder(os.Stdout).Encode(views)
	}

	if len(views) == 0 {
		fmt.Println("No installed apps.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tAPP\tOWNER\tPINNED\tLAST_USED\tUNINSTALLABLE")
	for i := range views {
		v := &views[i]
		lastUsed := "-"
		if v.LastUsedAt != nil {
			lastUsed = v.LastUsedAt.Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%t\n",
			v.ID, v.App.Name, v.AppOwnerTenantID, v.IsPinned, lastUsed, v.Uninstallable)
	}
	return w.Flush()
}

func runAdminRenameTenant(args []string) error {
	fs := flag.NewFlagSet("rename-tenant", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant id (required)")
	accountID := fs.String("account", "", "acting member account id (required)")
	name := fs.String("name", "", "new tenant name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" || *accountID == "" {
		return errors.New("--tenant and --account are required")
	}

	d, cleanup, err := loadAdminDeps()
	if err != nil {
		return err
	}
	defer cleanup()

	t, err := d.tenants.Rename(context.Background(), *tenantID, *accountID, *name)
	if err != nil {
		return fmt.Errorf("rename tenant: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant %s renamed to %q\n", t.ID, t.Name)
	return nil
}
