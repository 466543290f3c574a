package main

import "bidding-live/internal/cli"

func main() {
	cli.Execute()
}
