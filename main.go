// The main package for the catalogd executable.
package main

import (
	"github.com/playdex/catalog-crawler/cmd"
)

func main() {
	cmd.Execute()
}
