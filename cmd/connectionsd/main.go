package main

import "github.com/goliatone/go-connections/cmd/connectionsd/cmd"

func main() {
	cmd.Execute()
}
