package main

import (
	"github.com/chatmate/chatmate/internal/cli"
)

func main() {
	cli.Execute()
}
