package main

import "github.com/deploymenttheory/go-gptdisk/cmd"

func main() {
	cmd.Execute()
}
