// Larder is a local, offline-first recipe and template store.
package main

import "github.com/ovenbird/larder/internal/cli"

func main() {
	cli.Execute()
}
