package main

import "github.com/trufflehub/farm-management/cmd"

func main() {
	cmd.Execute()
}
