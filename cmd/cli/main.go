// Command medalert is the patient command-line client.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/and161185/medalert/internal/config"
	"github.com/and161185/medalert/internal/errs"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	root := newRootCmd(os.Stdin, os.Stdout)
	if err := root.Execute(); err != nil {
		fail(os.Stderr, err)
		os.Exit(1)
	}
}

// fail prints err the way a patient should read it.
func fail(w io.Writer, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		fmt.Fprintln(w, "error:", err)
		return
	}
	switch e.Kind {
	case errs.KindNotAuthenticated:
		fmt.Fprintf(w, "error: %s (run `medalert login`)\n", e.Message)
	case errs.KindRemoteRejected:
		if e.Status != 0 {
			fmt.Fprintf(w, "error: %s (HTTP %d)\n", e.Message, e.Status)
			return
		}
		fmt.Fprintln(w, "error:", e.Message)
	default:
		fmt.Fprintln(w, "error:", e.Error())
	}
}
