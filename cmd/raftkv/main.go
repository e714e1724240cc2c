package main

import (
	"log"

	"github.com/clusterkit/raftkv/internal/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatal(err)
	}
}
