package main

import (
	"log"
	"os"

	"scan-gate/cmd"
)

func main() {
	// "scan-gate agent" runs the gate device agent; anything else goes to
	// the system-of-record server (which owns the remaining CLI surface).
	if len(os.Args) > 1 && os.Args[1] == "agent" {
		if err := cmd.StartAgent(); err != nil {
			log.Fatal(err)
		}
		return
	}

	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
