package main

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/loomworks/millgo/internal/config"
	"github.com/loomworks/millgo/internal/database"
	"github.com/loomworks/millgo/internal/models"
)

func main() {
	fmt.Println("millgo demo data seeder")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("connected to database")

	err = db.AutoMigrate(
		&models.Fabric{},
		&models.Roll{},
		&models.ProductionOrder{},
		&models.ProductionBatch{},
		&models.Demand{},
		&models.StockAggregate{},
		&models.StockMovement{},
		&models.OperatorAuth{},
	)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	var fabricCount int64
	db.Model(&models.Fabric{}).Count(&fabricCount)
	if fabricCount > 0 {
		fmt.Printf("database already has %d fabrics; aborting so demo data is not duplicated\n", fabricCount)
		return
	}

	greige := models.Fabric{
		Code:           "GRG-240",
		Name:           "Greige 240gsm",
		Kind:           models.FabricKindRaw,
		StandardLength: decimal.NewFromInt(50),
	}
	if err := db.Create(&greige).Error; err != nil {
		log.Fatalf("Failed to create raw fabric: %v", err)
	}

	coated := models.Fabric{
		Code:           "PU-240",
		Name:           "PU Coated 240gsm",
		Kind:           models.FabricKindFinished,
		StandardLength: decimal.NewFromInt(50),
		RawFabricID:    &greige.ID,
	}
	if err := db.Create(&coated).Error; err != nil {
		log.Fatalf("Failed to create finished fabric: %v", err)
	}

	weaving := models.ProductionOrder{
		OrderNumber: "WO-DEMO-0001",
		Kind:        models.OrderKindWeaving,
		FabricID:    greige.ID,
		Color:       "navy",
		RequiredQty: decimal.NewFromInt(100),
		Status:      models.OrderStatusPending,
	}
	if err := db.Create(&weaving).Error; err != nil {
		log.Fatalf("Failed to create weaving order: %v", err)
	}

	coating := models.ProductionOrder{
		OrderNumber:     "CO-DEMO-0001",
		Kind:            models.OrderKindCoating,
		FabricID:        coated.ID,
		Color:           "navy",
		RequiredQty:     decimal.NewFromInt(100),
		Status:          models.OrderStatusWaitingMaterials,
		UpstreamOrderID: &weaving.ID,
	}
	if err := db.Create(&coating).Error; err != nil {
		log.Fatalf("Failed to create coating order: %v", err)
	}

	demand := models.Demand{
		DemandNumber: "D-DEMO-0001",
		FabricID:     coated.ID,
		Color:        "navy",
		QtyRequested: decimal.NewFromInt(60),
		Status:       models.DemandStatusUnmet,
		CustomerRef:  "ACME Outdoor",
	}
	if err := db.Create(&demand).Error; err != nil {
		log.Fatalf("Failed to create demand: %v", err)
	}

	fmt.Println("seeded: 2 fabrics, weaving WO-DEMO-0001, coating CO-DEMO-0001 (waiting), demand D-DEMO-0001 (60m navy)")
	fmt.Println("start the weaving order, complete it with a grading breakdown, and watch the cascade + sweep run")
}
