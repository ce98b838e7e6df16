package main

import "github.com/mlb-digital/hapctl/internal/cli"

func main() {
	cli.Main()
}
