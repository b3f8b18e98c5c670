package main

import "skbench/cmd"

func main() {
	cmd.Execute()
}
