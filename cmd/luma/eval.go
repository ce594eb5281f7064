package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumahq/luma/internal/lua"
	"github.com/lumahq/luma/internal/value"
)

var (
	evalFile         string
	evalTimeout      int
	evalOutputFormat string
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate a script once",
	Long: `Evaluate a script and print its result. The script reads whatever is
left on stdin as its input; when the script itself comes from stdin the
input is empty.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalFile, "file", "", "script path, stdin when empty or -")
	evalCmd.Flags().IntVar(&evalTimeout, "timeout", 30, "timeout in seconds")
	evalCmd.Flags().StringVar(&evalOutputFormat, "output-format", "text", "output format: text or json")
}

func runEval(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogger(cfg)

	name, source, err := readScript(evalFile)
	if err != nil {
		return err
	}

	opts := []lua.Option{
		lua.WithName(name),
		lua.WithInput(os.Stdin),
		lua.WithTimeout(resolveTimeout(cmd, cfg, evalTimeout)),
		lua.WithLogger(logger),
	}
	if cfg.Store.Path != "" {
		st, err := openStore(cfg.Store.Path, cfg.Store.RunMigrations)
		if err != nil {
			return err
		}
		defer st.Close()
		opts = append(opts, lua.WithStore(st))
	}

	eval, err := lua.NewEvaluation(source, opts...)
	if err != nil {
		return err
	}
	outcome, err := eval.Evaluate(cmd.Context())
	if err != nil {
		return err
	}

	os.Stdout.Write(outcome.Stdout)
	os.Stderr.Write(outcome.Stderr)

	switch evalOutputFormat {
	case "json":
		encoded, err := value.EncodeJSON(outcome.Value)
		if err != nil {
			return err
		}
		fmt.Print(string(encoded))
	default:
		fmt.Print(value.Display(outcome.Value))
	}
	return nil
}
