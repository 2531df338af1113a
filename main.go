package main

import (
	"context"
	"time"

	"github.com/nasda-team/nasda/config"
	"github.com/nasda-team/nasda/models"
	"github.com/nasda-team/nasda/routes"
	"github.com/nasda-team/nasda/services"
	"github.com/nasda-team/nasda/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer utils.Logger.Sync() //nolint:errcheck

	db := config.InitDatabase(models.All()...)
	storage := services.NewLocalImageStorage(cfg.UploadDir, cfg.UploadURLPath)

	r := routes.SetupRouter(db, utils.NewSMTPMailer(cfg), storage)

	// Retry removal of image files whose best-effort deletion failed
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	services.StartImageSweeper(ctx, db, storage,
		time.Duration(cfg.UploadSweepIntervalMin)*time.Minute,
		time.Duration(cfg.UploadSweepMinAgeMin)*time.Minute)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
