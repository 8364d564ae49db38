package main

import "stemdeck/cmd"

func main() {
	cmd.Execute()
}
