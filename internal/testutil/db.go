// Package testutil runs engine tests against a real PostgreSQL so the row
// locking and transaction semantics under test are the ones production uses.
package testutil

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loomworks/millgo/internal/models"
)

var (
	embedded *embeddedpostgres.EmbeddedPostgres
	shared   *gorm.DB
)

// Run starts one embedded PostgreSQL for the test binary, migrates the engine
// schema, runs the tests, and shuts the instance down. Call from TestMain:
//
//	func TestMain(m *testing.M) { os.Exit(testutil.Run(m)) }
func Run(m *testing.M) int {
	port, err := freePort()
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: no free port: %v\n", err)
		return 1
	}

	dir, err := os.MkdirTemp("", "millgo-pg-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: temp dir: %v\n", err)
		return 1
	}
	defer os.RemoveAll(dir)

	embedded = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
		DataPath(filepath.Join(dir, "data")).
		RuntimePath(filepath.Join(dir, "runtime")).
		Port(uint32(port)).
		Database("millgo_test").
		Username("postgres").
		Password("postgres").
		StartTimeout(60 * time.Second))
	if err := embedded.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "testutil: start embedded postgres: %v\n", err)
		return 1
	}
	defer embedded.Stop()

	dsn := fmt.Sprintf("host=localhost port=%d user=postgres password=postgres dbname=millgo_test sslmode=disable", port)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "testutil: connect: %v\n", err)
		return 1
	}

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
		fmt.Fprintf(os.Stderr, "testutil: migrate: %v\n", err)
		return 1
	}

	shared = db
	return m.Run()
}

// OpenDB hands each test the shared database with all engine tables emptied.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	if shared == nil {
		t.Fatal("testutil.Run was not called from TestMain")
	}
	// Children before parents so FK constraints never block the wipe.
	for _, table := range []string{
		"stock_movements", "stock_aggregates", "rolls", "production_batches",
		"production_orders", "demands", "operator_auth", "fabrics",
	} {
		if err := shared.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("failed to reset table %s: %v", table, err)
		}
	}
	return shared
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
