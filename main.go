// The main package for the wayback-fetcher executable.
package main

import (
	"github.com/JakeFAU/wayback-fetcher/cmd"
)

func main() {
	cmd.Execute()
}
