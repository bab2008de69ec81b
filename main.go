package main

import "github.com/kamusis/assessrec/cmd"

func main() {
	cmd.Execute()
}
