package main

import "github.com/roadscan/speedcam/cmd"

func main() {
	cmd.Execute()
}
