package main

import "github.com/weiminghaoo/save-mi-doorbell-video/cmd"

func main() {
	cmd.Execute()
}
