package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lumahq/luma/internal/lua"
)

var checkFile string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a script for syntax errors",
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkFile, "file", "", "script path, stdin when empty or -")
}

func runCheck(_ *cobra.Command, _ []string) error {
	name, source, err := readScript(checkFile)
	if err != nil {
		return err
	}
	if err := lua.Check(source, name); err != nil {
		var cerr *lua.CompileError
		if errors.As(err, &cerr) {
			fmt.Fprint(os.Stderr, annotate(source, cerr))
			os.Exit(1)
		}
		return err
	}
	fmt.Println("OK")
	return nil
}

// annotate renders the offending source line with a caret under the error
// column.
func annotate(source string, cerr *lua.CompileError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", cerr)
	lines := strings.Split(source, "\n")
	if cerr.Line < 1 || cerr.Line > len(lines) {
		return b.String()
	}
	line := lines[cerr.Line-1]
	col := cerr.Column
	if col < 1 {
		col = 1
	}
	if col > len(line)+1 {
		col = len(line) + 1
	}
	fmt.Fprintf(&b, "%5d | %s\n", cerr.Line, line)
	fmt.Fprintf(&b, "      | %s^\n", strings.Repeat(" ", col-1))
	return b.String()
}
