// The main package for the comixetl executable.
package main

import (
	"github.com/comixcatalog/etl/cmd"
)

func main() {
	cmd.Execute()
}
