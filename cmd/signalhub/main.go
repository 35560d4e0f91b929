package main

import "github.com/nfrund/signalhub/cmd/signalhub/cmd"

func main() {
	cmd.Execute()
}
