package main

import "registry-retain/internal/cli"

func main() {
	cli.Execute()
}
