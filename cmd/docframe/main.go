package main

import "github.com/MeKo-Tech/docframe/cmd/docframe/cmd"

func main() {
	cmd.Execute()
}
