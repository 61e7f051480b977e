package sqlite

import (
	"time"

	"gorm.io/datatypes"
)

type EntityTypeModel struct {
	ID          uint   `gorm:"primaryKey"`
	Type        string `gorm:"uniqueIndex;not null"`
	Label       string `gorm:"not null"`
	Description string
	Position    int `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (EntityTypeModel) TableName() string { return "entity_types" }

type PropertyDefModel struct {
	ID          uint   `gorm:"primaryKey"`
	EntityType  string `gorm:"not null;index:idx_type_property,unique"`
	Name        string `gorm:"not null;index:idx_type_property,unique"`
	ValueKind   string `gorm:"not null;default:'string'"`
	Required    bool   `gorm:"not null;default:false"`
	EnumName    string `gorm:"not null;default:''"`
	Description string
	Position    int `gorm:"not null;default:0"`
}

func (PropertyDefModel) TableName() string { return "property_defs" }

type RelationTypeModel struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
	Directed    bool `gorm:"not null;default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (RelationTypeModel) TableName() string { return "relation_types" }

// RelationshipRuleModel is one row of the relationship matrix.
type RelationshipRuleModel struct {
	ID               uint   `gorm:"primaryKey"`
	FromEntityType   string `gorm:"not null;index:idx_rule,unique"`
	ToEntityType     string `gorm:"not null;index:idx_rule,unique"`
	RelationshipName string `gorm:"not null;index:idx_rule,unique"`
}

func (RelationshipRuleModel) TableName() string { return "relationship_rules" }

type EnumValueModel struct {
	ID       uint   `gorm:"primaryKey"`
	EnumName string `gorm:"not null;index:idx_enum_value,unique"`
	Value    string `gorm:"not null;index:idx_enum_value,unique"`
	Position int    `gorm:"not null;default:0"`
}

func (EnumValueModel) TableName() string { return "enum_values" }

type EntityModel struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"not null;index"`
	Type        string `gorm:"not null;index"`
	Description *string
	Properties  datatypes.JSONMap `gorm:"type:text;not null;default:'{}'"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (EntityModel) TableName() string { return "entities" }

type EdgeModel struct {
	ID           uint `gorm:"primaryKey"`
	FromEntityID uint `gorm:"not null;index:idx_edge_pair,unique"`
	ToEntityID   uint `gorm:"not null;index:idx_edge_pair,unique;index"`
	CreatedAt    time.Time
}

func (EdgeModel) TableName() string { return "edges" }

// entityRow is an entity joined with its edge count.
type entityRow struct {
	ID           uint
	Name         string
	Type         string
	Description  *string
	Properties   datatypes.JSONMap
	CreatedAt    time.Time
	UpdatedAt    time.Time
	RelatedCount int
}
