package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xponent/shopcore/internal/domain"
)

// ProductRepository provides database operations for catalog products.
type ProductRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository.
// Parameters:
//   - db: open database handle.
// Returns:
//   - *ProductRepository: ready repository.
func NewProductRepository(db *gorm.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert inserts a product or updates the existing row with the same ID.
// Parameters:
//   - ctx: request context.
//   - product: record to persist; UpdatedAt is refreshed on conflict.
// Returns:
//   - error: non-nil on database failure.
func (r *ProductRepository) Upsert(ctx context.Context, product *domain.Product) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_type", "source_id", "name", "description", "category",
			"brand", "color", "material", "features", "price", "stock",
			"status", "embedded_at", "updated_at",
		}),
	}).Create(product).Error
	if err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

// GetByID fetches a single product.
// Returns:
//   - *domain.Product: the record, or nil if not found.
//   - error: non-nil on database failure.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &product, nil
}

// GetByIDs fetches products by ID preserving the input order. Missing IDs
// are skipped, not errors.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []*domain.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to get products: %w", err)
	}
	byID := make(map[string]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	ordered := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// Delete removes a product. Deleting an absent ID is a no-op.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Product{}).Error; err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	return nil
}

// UpdateStatus updates a product's indexing status. Activation also stamps
// EmbeddedAt so stale embeddings can be detected later.
func (r *ProductRepository) UpdateStatus(ctx context.Context, id string, status domain.ProductStatus) error {
	updates := map[string]interface{}{"status": status}
	if status == domain.ProductStatusActive {
		now := time.Now()
		updates["embedded_at"] = &now
	}
	if err := r.db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update product status: %w", err)
	}
	return nil
}

// ListByCategory returns active products in a category, newest first.
func (r *ProductRepository) ListByCategory(ctx context.Context, category string, limit, offset int) ([]*domain.Product, error) {
	var products []*domain.Product
	q := r.db.WithContext(ctx).Where("status = ?", domain.ProductStatusActive)
	if category != "" {
		q = q.Where("LOWER(category) = ?", strings.ToLower(category))
	}
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// GetCategories returns the distinct categories of active products.
func (r *ProductRepository) GetCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("status = ? AND category != ''", domain.ProductStatusActive).
		Distinct("category").Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return categories, nil
}

// GetBrands returns the distinct brands of active products.
func (r *ProductRepository) GetBrands(ctx context.Context) ([]string, error) {
	var brands []string
	err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Where("status = ? AND brand != ''", domain.ProductStatusActive).
		Distinct("brand").Order("brand ASC").
		Pluck("brand", &brands).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get brands: %w", err)
	}
	return brands, nil
}

// CountByStatus returns product counts grouped by indexing status.
func (r *ProductRepository) CountByStatus(ctx context.Context) (map[domain.ProductStatus]int64, error) {
	type row struct {
		Status domain.ProductStatus
		Count  int64
	}
	var rows []row
	err := r.db.WithContext(ctx).Model(&domain.Product{}).
		Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}
	counts := make(map[domain.ProductStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// FindByConstraints performs structured catalog filtering. It backs the
// degraded search path when the embedding provider is down: price bounds and
// exclusions filter hard, category/brand/color narrow the scan, and keywords
// narrow it only when nothing structured does (any keyword may match).
// Parameters:
//   - ctx: request context.
//   - cs: parsed constraint set.
//   - limit: maximum rows to return.
// Returns:
//   - []*domain.Product: matching active products, newest first.
//   - error: non-nil on database failure.
func (r *ProductRepository) FindByConstraints(ctx context.Context, cs *domain.ConstraintSet, limit int) ([]*domain.Product, error) {
	q := r.db.WithContext(ctx).Where("status = ?", domain.ProductStatusActive)

	if max, ok := cs.MaxPrice(); ok {
		q = q.Where("price IS NOT NULL AND price <= ?", max)
	}
	if min, ok := cs.MinPrice(); ok {
		q = q.Where("price IS NOT NULL AND price >= ?", min)
	}
	if cats := cs.Values(domain.ConstraintCategory); len(cats) > 0 {
		q = q.Where("LOWER(category) IN ?", cats)
	}
	if brands := cs.Values(domain.ConstraintBrand); len(brands) > 0 {
		q = q.Where("LOWER(brand) IN ?", brands)
	}
	if colors := cs.Values(domain.ConstraintColor); len(colors) > 0 {
		q = q.Where("LOWER(color) IN ?", colors)
	}
	for _, term := range cs.Values(domain.ConstraintExclusion) {
		pattern := "%" + term + "%"
		q = q.Where("LOWER(name) NOT LIKE ? AND LOWER(description) NOT LIKE ? AND LOWER(material) NOT LIKE ?",
			pattern, pattern, pattern)
	}
	if terms := keywordFilterTerms(cs); len(terms) > 0 {
		clauses := make([]string, 0, len(terms))
		args := make([]interface{}, 0, len(terms)*2)
		for _, term := range terms {
			pattern := "%" + term + "%"
			clauses = append(clauses, "LOWER(name) LIKE ? OR LOWER(description) LIKE ?")
			args = append(args, pattern, pattern)
		}
		q = q.Where("("+strings.Join(clauses, " OR ")+")", args...)
	}

	var products []*domain.Product
	if err := q.Order("created_at DESC").Limit(limit).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to find products by constraints: %w", err)
	}
	return products, nil
}

// keywordFilterTerms decides which keyword terms narrow the SQL scan.
// Keywords are soft evidence: when a category, brand, or color constraint
// already narrows the result, keywords are left to the ranker so a product
// matching the structured constraints but missing one keyword is ranked
// lower, not excluded. With no structured narrowing, keywords are the only
// handle on the catalog and any one of them may match.
func keywordFilterTerms(cs *domain.ConstraintSet) []string {
	if len(cs.Values(domain.ConstraintCategory)) > 0 ||
		len(cs.Values(domain.ConstraintBrand)) > 0 ||
		len(cs.Values(domain.ConstraintColor)) > 0 {
		return nil
	}
	return cs.Values(domain.ConstraintKeyword)
}

// ListPendingEmbedding returns products awaiting (re)embedding.
func (r *ProductRepository) ListPendingEmbedding(ctx context.Context, limit int) ([]*domain.Product, error) {
	var products []*domain.Product
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.ProductStatusPending).
		Order("created_at ASC").Limit(limit).Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending products: %w", err)
	}
	return products, nil
}
