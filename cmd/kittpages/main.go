// Command kittpages manages a tree of block-based pages.
package main

import (
	"os"

	"github.com/kittclouds/kittpages/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
