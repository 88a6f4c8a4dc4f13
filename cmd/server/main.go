package main

import "github.com/shamandhungel-voodoo/SyncScholars-backend/internal/app"

func main() {
	app.Run()
}
