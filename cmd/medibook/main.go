package main

import "github.com/aussiebroadwan/medibook/internal/medibook/cli"

func main() {
	cli.Execute()
}
