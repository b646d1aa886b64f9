package main

import "github.com/qobs-build/evoke/cmd"

func main() {
	cmd.Execute()
}
