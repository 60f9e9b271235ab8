package main

import (
	"log"

	"github.com/guy4carbs/goldcoastfinancial-sub000/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
