package main

import "github.com/deploykit/cmd"

func main() {
	cmd.Execute()
}
