package main

import "github.com/nfrund/weatherdash/cmd/weatherdash/cmd"

func main() {
	cmd.Execute()
}
