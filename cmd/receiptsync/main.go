package main

import (
	"os"

	"github.com/golang/glog"
)

func main() {
	err := newRootCommand().Execute()
	if err != nil {
		errorColor.Fprintln(os.Stderr, err)
	}
	glog.Flush()
	if err != nil {
		os.Exit(1)
	}
}
