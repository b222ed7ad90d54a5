package main

import "github.com/tablesmith/tablesmith/cmd"

func main() {
	cmd.Execute()
}
