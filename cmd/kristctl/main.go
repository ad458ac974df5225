package main

import "github.com/tmpim/krist/cmd/kristctl/cmd"

func main() {
	cmd.Execute()
}
