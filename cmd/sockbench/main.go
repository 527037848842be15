package main

import "sockbench/cmd"

func main() {
	cmd.Execute()
}
