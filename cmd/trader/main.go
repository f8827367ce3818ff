package main

import "github.com/rustyeddy/equitytrader/internal/cli"

func main() {
	cli.Execute()
}
