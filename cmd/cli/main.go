package main

import "vpainless/internal/cli/cmd"

func main() {
	cmd.Execute()
}
