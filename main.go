package main

import "github.com/datashop/datashop/cmd"

func main() {
	cmd.Execute()
}
