package main

import "github.com/mdmeraj-dev/skillnestx-go/cmd/skillnestx/cmd"

func main() {
	cmd.Execute()
}
