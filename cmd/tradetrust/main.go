// Command tradetrust runs and audits agent trade intents.
package main

import (
	"fmt"
	"io"
	"os"
)

const version = "0.1.0"

func main() {
	os.Exit(Run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing. Exit codes: 0 success, 1 the operation
// ran and failed (rejected trade, broken chain), 2 usage or runtime error.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "execute":
		return runExecuteCmd(args[2:], stdin, stdout, stderr)
	case "compile":
		return runCompileCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "chain":
		return runChainCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "version":
		_, _ = fmt.Fprintf(stdout, "tradetrust %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorBlue  = "\033[34m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%stradetrust %s%s\n", colorBold+colorBlue, version, colorReset)
	fmt.Fprintf(w, "%sAgents propose trades. Receipts prove them.%s\n", colorGray, colorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	fmt.Fprintln(w, "  tradetrust <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "EXECUTION")
	printCommand(w, "execute", "Run a trade intent through the pipeline (--params, --user, --agent)")
	printCommand(w, "compile", "Compile a copytrading policy (--text, --profile | --preset)")

	printSection(w, "AUDIT")
	printCommand(w, "audit", "Inspect audit records (get|list|latest|settle)")
	printCommand(w, "chain", "Verify the fallback verification chain (verify --path)")
	printCommand(w, "health", "Check the verification backend")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", colorBold+colorCyan, title, colorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", colorGreen, name, colorReset, desc)
}
