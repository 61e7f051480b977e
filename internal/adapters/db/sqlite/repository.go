package sqlite

import (
	"context"
	"errors"
	"strings"

	"github.com/stejskal/web-predator/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

type GraphRepository struct {
	db *gorm.DB
}

var _ domain.GraphRepository = (*GraphRepository)(nil)

func Open(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func NewGraphRepository(db *gorm.DB) *GraphRepository {
	return &GraphRepository{db: db}
}

const entitySelect = `
SELECT e.id,
       e.name,
       e.type,
       e.description,
       e.properties,
       e.created_at,
       e.updated_at,
       (SELECT COUNT(*) FROM edges x WHERE x.from_entity_id = e.id OR x.to_entity_id = e.id) AS related_count
FROM entities e
`

func (r *GraphRepository) ListEntities(ctx context.Context, params domain.SearchParams) ([]domain.Entity, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if name := strings.TrimSpace(params.Name); name != "" {
		where = append(where, "lower(e.name) = lower(?)")
		args = append(args, name)
	}
	if typ := strings.TrimSpace(params.Type); typ != "" {
		where = append(where, "e.type = ?")
		args = append(args, typ)
	}
	if frag := strings.TrimSpace(params.NameFragment); frag != "" {
		where = append(where, "e.name LIKE ?")
		args = append(args, "%"+frag+"%")
	}

	q := entitySelect
	if len(where) > 0 {
		q += "WHERE " + strings.Join(where, " AND ") + "\n"
	}
	q += "ORDER BY e.id ASC"

	rows := make([]entityRow, 0)
	if err := r.db.WithContext(ctx).Raw(q, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *GraphRepository) GetEntity(ctx context.Context, id uint) (domain.Entity, error) {
	rows := make([]entityRow, 0, 1)
	if err := r.db.WithContext(ctx).Raw(entitySelect+"WHERE e.id = ?", id).Scan(&rows).Error; err != nil {
		return domain.Entity{}, err
	}
	if len(rows) == 0 {
		return domain.Entity{}, domain.ErrNotFound
	}
	return toEntity(rows[0]), nil
}

func (r *GraphRepository) CreateEntity(ctx context.Context, value domain.Entity) (domain.Entity, error) {
	m := EntityModel{
		Name:        value.Name,
		Type:        value.Type,
		Description: value.Description,
		Properties:  toJSONMap(value.Properties),
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Entity{}, err
	}

	return domain.Entity{
		ID:          m.ID,
		Name:        m.Name,
		Type:        m.Type,
		Description: m.Description,
		Properties:  map[string]any(m.Properties),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func (r *GraphRepository) UpdateEntity(ctx context.Context, id uint, req domain.UpdateEntityRequest) (domain.Entity, error) {
	var m EntityModel
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Entity{}, domain.ErrNotFound
		}
		return domain.Entity{}, err
	}
	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Type != nil {
		m.Type = *req.Type
	}
	if req.Description != nil {
		if *req.Description == "" {
			m.Description = nil
		} else {
			desc := *req.Description
			m.Description = &desc
		}
	}
	if req.Properties != nil {
		m.Properties = toJSONMap(req.Properties)
	}
	if err := r.db.WithContext(ctx).Save(&m).Error; err != nil {
		return domain.Entity{}, err
	}
	return r.GetEntity(ctx, id)
}

// DeleteEntity removes the entity together with every edge touching it.
func (r *GraphRepository) DeleteEntity(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("from_entity_id = ? OR to_entity_id = ?", id, id).Delete(&EdgeModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&EntityModel{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

// RelatedEntities returns the union of id's outgoing and incoming
// neighbours, ordered by id.
func (r *GraphRepository) RelatedEntities(ctx context.Context, id uint) ([]domain.Entity, error) {
	if _, err := r.GetEntity(ctx, id); err != nil {
		return nil, err
	}
	rows := make([]entityRow, 0)
	if err := r.db.WithContext(ctx).Raw(entitySelect+`
WHERE e.id IN (
    SELECT to_entity_id FROM edges WHERE from_entity_id = ?
    UNION
    SELECT from_entity_id FROM edges WHERE to_entity_id = ?
)
ORDER BY e.id ASC`, id, id).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *GraphRepository) CreateEdge(ctx context.Context, fromID, toID uint) (domain.Edge, error) {
	m := EdgeModel{FromEntityID: fromID, ToEntityID: toID}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		if isUniqueViolation(err) {
			return domain.Edge{}, domain.ErrDuplicateEdge
		}
		return domain.Edge{}, err
	}
	return domain.Edge{FromEntityID: m.FromEntityID, ToEntityID: m.ToEntityID, CreatedAt: m.CreatedAt}, nil
}

func (r *GraphRepository) DeleteEdge(ctx context.Context, fromID, toID uint) error {
	res := r.db.WithContext(ctx).Where("from_entity_id = ? AND to_entity_id = ?", fromID, toID).Delete(&EdgeModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GraphRepository) EdgeExists(ctx context.Context, fromID, toID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&EdgeModel{}).
		Where("from_entity_id = ? AND to_entity_id = ?", fromID, toID).
		Count(&count).Error
	return count > 0, err
}

func (r *GraphRepository) LoadSchema(ctx context.Context) (domain.Schema, error) {
	db := r.db.WithContext(ctx)

	types := make([]EntityTypeModel, 0)
	if err := db.Order("position ASC, id ASC").Find(&types).Error; err != nil {
		return domain.Schema{}, err
	}
	props := make([]PropertyDefModel, 0)
	if err := db.Order("position ASC, id ASC").Find(&props).Error; err != nil {
		return domain.Schema{}, err
	}
	relations := make([]RelationTypeModel, 0)
	if err := db.Order("id ASC").Find(&relations).Error; err != nil {
		return domain.Schema{}, err
	}
	rules := make([]RelationshipRuleModel, 0)
	if err := db.Order("id ASC").Find(&rules).Error; err != nil {
		return domain.Schema{}, err
	}
	enumValues := make([]EnumValueModel, 0)
	if err := db.Order("enum_name ASC, position ASC, id ASC").Find(&enumValues).Error; err != nil {
		return domain.Schema{}, err
	}

	enums := make(map[string][]string)
	for _, v := range enumValues {
		enums[v.EnumName] = append(enums[v.EnumName], v.Value)
	}

	propsByType := make(map[string][]domain.PropertySchema)
	for _, p := range props {
		ps := domain.PropertySchema{
			Name:        p.Name,
			Type:        p.ValueKind,
			Required:    p.Required,
			Description: p.Description,
		}
		if p.EnumName != "" {
			ps.EnumValues = enums[p.EnumName]
		}
		propsByType[p.EntityType] = append(propsByType[p.EntityType], ps)
	}

	out := domain.Schema{
		Entities:           make([]domain.EntitySchema, 0, len(types)),
		Relationships:      make([]domain.RelationshipSchema, 0, len(relations)),
		RelationshipMatrix: make([]domain.RelationshipRule, 0, len(rules)),
		Enums:              enums,
	}
	for _, t := range types {
		properties := propsByType[t.Type]
		if properties == nil {
			properties = []domain.PropertySchema{}
		}
		out.Entities = append(out.Entities, domain.EntitySchema{
			Type:        t.Type,
			Label:       t.Label,
			Description: t.Description,
			Properties:  properties,
		})
	}
	descriptions := make(map[string]string, len(relations))
	for _, rel := range relations {
		descriptions[rel.Name] = rel.Description
		out.Relationships = append(out.Relationships, domain.RelationshipSchema{
			Name:          rel.Name,
			Description:   rel.Description,
			IsDirectional: rel.Directed,
		})
	}
	for _, rule := range rules {
		out.RelationshipMatrix = append(out.RelationshipMatrix, domain.RelationshipRule{
			FromEntityType:          rule.FromEntityType,
			ToEntityType:            rule.ToEntityType,
			RelationshipName:        rule.RelationshipName,
			RelationshipDescription: descriptions[rule.RelationshipName],
		})
	}
	return out, nil
}

func toEntities(rows []entityRow) []domain.Entity {
	result := make([]domain.Entity, 0, len(rows))
	for _, row := range rows {
		result = append(result, toEntity(row))
	}
	return result
}

func toEntity(row entityRow) domain.Entity {
	props := map[string]any(row.Properties)
	if props == nil {
		props = map[string]any{}
	}
	return domain.Entity{
		ID:                   row.ID,
		Name:                 row.Name,
		Type:                 row.Type,
		Description:          row.Description,
		Properties:           props,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
		RelatedEntitiesCount: row.RelatedCount,
	}
}

func toJSONMap(props map[string]any) datatypes.JSONMap {
	if props == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(props)
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}
