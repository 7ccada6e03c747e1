package main

import (
	"artistsfirst/cmd"
)

func main() {
	cmd.Execute()
}
