// Command matcat lists the variables in a MATLAB Level-5 MAT-file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/cortexdata/matlab5"
)

func main() {
	app := &cli.Command{
		Name:  "matcat",
		Usage: "inspect MATLAB Level-5 MAT-files",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "log parser diagnostics to stderr"},
			&cli.IntFlag{Name: "limit", Usage: "cap decoded elements per primitive array (0 = unlimited)"},
		},
		ArgsUsage: "<path.mat>",
		Action:    run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "matcat:", err)
		if ec, ok := err.(cli.ExitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		os.Exit(2)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return cli.Exit("usage: matcat [--verbose] [--limit N] <path.mat>", 2)
	}

	logger := mat5.DiscardLogger()
	if cmd.Bool("verbose") {
		logger = mat5.DefaultLogger()
	}

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open %s: %v", path, err), 1)
	}
	defer f.Close()

	mf, err := mat5.Open(f, false, logger)
	if err != nil {
		return cli.Exit(fmt.Sprintf("read header: %v", err), 1)
	}
	defer mf.Close()

	if limit := cmd.Int("limit"); limit != 0 {
		mf.SetLimit(int(limit))
	}

	fmt.Println(mf.Header)

	for {
		v, err := mf.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		printVar(v)
	}
	return nil
}

func printVar(v interface{}) {
	switch t := v.(type) {
	case *mat5.NumericArray:
		fmt.Printf("%-20s %-10s %v\n", t.Name, t.Class, t.Dims)
	case *mat5.String:
		fmt.Printf("%-20s %-10s %q\n", t.Name, "char", truncate(t.Text, 60))
	case *mat5.Structure:
		kind := "struct"
		if t.IsObject() {
			kind = "object:" + t.ClassName
		}
		fmt.Printf("%-20s %-10s fields=%v\n", t.Name, kind, t.FieldOrder)
	case *mat5.CellArray:
		fmt.Printf("%-20s %-10s %v cells=%d\n", t.Name, "cell", t.Dims, len(t.Cells))
	case *mat5.SparseArray:
		fmt.Printf("%-20s %-10s (unsupported)\n", t.Name, "sparse")
	case *mat5.Undocumented:
		fmt.Printf("%-20s %-10s\n", t.Name, "undocumented")
	default:
		fmt.Printf("%-20s %-10s %v\n", "", "value", t)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
