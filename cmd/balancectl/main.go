package main

import "balanceview/internal/cli"

func main() {
	cli.Execute()
}
