package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumahq/luma/internal/store"
	"github.com/lumahq/luma/internal/value"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Administer the store",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run store migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openAdminStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("OK")
		return nil
	},
}

var storeGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a value as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAdminStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		v, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		encoded, err := value.EncodeJSON(v)
		if err != nil {
			return err
		}
		fmt.Println(string(encoded))
		return nil
	},
}

var storePutCmd = &cobra.Command{
	Use:   "put <name> <json>",
	Short: "Write a value from JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAdminStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		v, err := value.DecodeJSON([]byte(args[1]))
		if err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		if _, err := st.Put(cmd.Context(), args[0], v); err != nil {
			return err
		}
		return nil
	},
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openAdminStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		return st.Delete(cmd.Context(), args[0])
	},
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored values",
	RunE: func(cmd *cobra.Command, _ []string) error {
		st, err := openAdminStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()
		entries, err := st.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTYPE\tSIZE\tCREATED\tUPDATED")
		for _, m := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				m.Name, m.Type, m.Size,
				m.CreatedAt.UTC().Format(time.RFC3339),
				m.UpdatedAt.UTC().Format(time.RFC3339))
		}
		return w.Flush()
	},
}

func init() {
	storeCmd.AddCommand(storeMigrateCmd, storeGetCmd, storePutCmd, storeDeleteCmd, storeListCmd)
}

// openAdminStore opens the store for administration. Unlike script
// evaluation there is no point in an in-memory fallback, so a path is
// required and nothing is migrated implicitly.
func openAdminStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg)
	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("store path required: use --store-path or STORE_PATH")
	}
	return store.New(cfg.Store.Path, store.WithLogger(logger))
}
