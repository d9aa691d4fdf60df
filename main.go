package main

import "github.com/tonimelisma/onedrive-gateway/cmd"

func main() {
	cmd.Execute()
}
