// Command fastsum computes a two-level SHA-256 digest of every file
// named or found under the given paths, printing one line per file to
// stdout in the form "<digest>  <path>".
package main

import (
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/matejcik/fastsum/internal/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run builds and executes the root command against args, writing
// digest lines and usage text to stdout and per-file errors to
// stderr. The optional progress spinner writes to the process's
// standard error, not to stderr. It returns the process exit code.
//
// Exit code 1 means the invocation itself was malformed (an unknown
// flag, or zero file arguments); exit code 0 means the pipeline ran,
// even if individual files failed and were reported to stderr.
func run(args []string, stdout, stderr io.Writer) int {
	var opts struct {
		hashWorkers int
		fileWorkers int
		progress    bool
	}

	root := &cobra.Command{
		Use:           "fastsum [OPTIONS] FILE...",
		Short:         "Compute two-level SHA-256 digests of files and directories",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, fileArgs []string) error {
			o := pipeline.New(pipeline.Options{
				FileWorkers:  opts.fileWorkers,
				HashWorkers:  opts.hashWorkers,
				Stdout:       stdout,
				Stderr:       stderr,
				ShowProgress: opts.progress,
			})
			o.Run(fileArgs)
			return nil
		},
	}

	root.Flags().IntVarP(&opts.hashWorkers, "hash-workers", "w", runtime.NumCPU(), "number of hash worker goroutines")
	root.Flags().IntVarP(&opts.fileWorkers, "file-workers", "f", 16, "number of file worker goroutines")
	root.Flags().BoolVar(&opts.progress, "progress", false, "show a progress spinner on stderr")

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stdout) // cobra's own usage/help text also goes to stdout, not stderr

	if err := root.Execute(); err != nil {
		// RunE above never returns an error: this is always a flag- or
		// argument-parsing failure, caught before RunE ran.
		io.WriteString(stdout, root.UsageString())
		return 1
	}
	return 0
}
