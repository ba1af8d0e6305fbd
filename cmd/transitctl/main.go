package main

import "github.com/JonMunkholm/transitwatch/internal/cli"

func main() {
	cli.Execute()
}
