package main

import "ncpass/cmd/client/cmd"

func main() {
	cmd.Execute()
}
