package main

import "github.com/werpoz/chatrelay/cmd"

func main() {
	cmd.Execute()
}
