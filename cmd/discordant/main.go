// Package main is the entry point for the discordant CLI.
package main

import (
	"github.com/sipeed/discordant/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.FatalCF("main", "discordant failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
