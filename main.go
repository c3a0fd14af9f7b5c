package main

import "github.com/drgolem/dmm/cmd"

func main() {
	cmd.Execute()
}
