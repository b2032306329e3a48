package main

import (
	"github.com/amkisko/snake/cmd"
	"github.com/amkisko/snake/internal/logging"
)

func main() {
	logging.Init("", nil)
	cmd.Execute()
}
