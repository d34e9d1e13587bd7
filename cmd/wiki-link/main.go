// Command wiki-link mirrors a DokuWiki page tree into a tree of converted
// documents, once or continuously.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
