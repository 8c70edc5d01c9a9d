package main

import (
	"fmt"
	"log"
	"os"

	"github.com/nexushours/backend/internal/database"
	"github.com/nexushours/backend/internal/migrations"
	"github.com/spf13/viper"
)

func main() {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("[CONFIG] no .env file found, relying on environment: %v", err)
	}

	db, err := database.InitDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ database connection: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	err = migrations.Apply(db, func(name string, stepErr error) {
		if stepErr != nil {
			fmt.Printf("✗ %s: %v\n", name, stepErr)
			return
		}
		fmt.Printf("✓ %s\n", name)
	})
	if err != nil {
		os.Exit(1)
	}

	fmt.Println("✓ schema up to date")
}
