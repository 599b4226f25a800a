package model

type Tier struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	Name      string `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	MinPoints int64  `gorm:"uniqueIndex;not null" json:"min_points"`
	Icon      string `gorm:"type:varchar(128)" json:"icon"`
}

func (Tier) TableName() string {
	return "loyalty_tier"
}
