package main

import "github.com/jfmyers9/nada/cmd"

func main() {
	cmd.Execute()
}
