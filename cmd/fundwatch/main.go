package main

import (
	"fundwatch/internal/cli"
)

func main() {
	cli.Execute()
}
