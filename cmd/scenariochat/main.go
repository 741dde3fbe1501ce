// Package main is the entry point for the scenario chat server and its
// operator commands.
//
//	@title						Scenario Chat API
//	@version					1.0
//	@description				Role-gated chat over admin-authored scenarios.
//	@BasePath					/api/v1
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"fmt"
	"os"

	"github.com/tbourn/scenario-chat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
