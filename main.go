package main

import "github.com/CosmoTheDev/procwatch/cmd"

func main() {
	cmd.Execute()
}
