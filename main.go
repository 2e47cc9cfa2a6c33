package main

import "github.com/pagepack/pagepack/cmd"

func main() {
	cmd.Execute()
}
