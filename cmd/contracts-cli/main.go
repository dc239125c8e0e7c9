package main

import (
	"fmt"
	"os"
)

func main() {
	c := newCLI(os.Stdout)
	err := newRootCmd(c).Execute()
	c.teardown()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
