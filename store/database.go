package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codetesla51/productcache/product"
)

// ProductRecord represents a row in the products table
type ProductRecord struct {
	ID       int `gorm:"primaryKey;autoIncrement:false"`
	Name     string
	Quantity int
	Price    float64
}

func (ProductRecord) TableName() string {
	return "products"
}

func (r ProductRecord) product() product.Product {
	return product.Product{ID: r.ID, Name: r.Name, Quantity: r.Quantity, Price: r.Price}
}

// DatabaseStore reads the catalog from Postgres.
type DatabaseStore struct {
	db *gorm.DB
}

func NewDatabaseStore(dsn string) (*DatabaseStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-create table if needed
	if err := db.AutoMigrate(&ProductRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &DatabaseStore{db: db}, nil
}

// Seed inserts products when the table is empty. It reports how many rows
// were written.
func (ds *DatabaseStore) Seed(ctx context.Context, products []product.Product) (int, error) {
	var count int64
	if err := ds.db.WithContext(ctx).Model(&ProductRecord{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	if count > 0 || len(products) == 0 {
		return 0, nil
	}

	records := make([]ProductRecord, 0, len(products))
	for _, p := range products {
		records = append(records, ProductRecord{ID: p.ID, Name: p.Name, Quantity: p.Quantity, Price: p.Price})
	}
	if err := ds.db.WithContext(ctx).Create(&records).Error; err != nil {
		return 0, fmt.Errorf("seed products: %w", err)
	}
	return len(records), nil
}

func (ds *DatabaseStore) FetchAll(ctx context.Context) ([]product.Product, error) {
	var records []ProductRecord
	if err := ds.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}

	products := make([]product.Product, 0, len(records))
	for _, r := range records {
		products = append(products, r.product())
	}
	return products, nil
}

func (ds *DatabaseStore) FetchByID(ctx context.Context, id int) (product.Product, error) {
	var record ProductRecord
	result := ds.db.WithContext(ctx).Where("id = ?", id).First(&record)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return product.Product{}, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	if result.Error != nil {
		return product.Product{}, fmt.Errorf("fetch product %d: %w", id, result.Error)
	}
	return record.product(), nil
}

// Close closes the database connection
func (ds *DatabaseStore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
