package main

import "github.com/SafeMPC/steamguard/cmd"

func main() {
	cmd.Execute()
}
