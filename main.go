package main

import (
	"github.com/asfalis/asfalis/cmd"
	"github.com/asfalis/asfalis/internal/config"
)

func main() {
	config.LoadConfig()
	cmd.Execute()
}
