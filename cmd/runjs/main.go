package main

import "github.com/shiroyk/runjs/cmd"

func main() {
	cmd.Execute()
}
