package model

// RewardCatalogEntry 可兑换奖品
type RewardCatalogEntry struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	RewardID  string `gorm:"type:varchar(64);uniqueIndex;not null" json:"reward_id"`
	Name      string `gorm:"type:varchar(128);not null" json:"name"`
	PointCost int64  `gorm:"not null" json:"point_cost"`
}

func (RewardCatalogEntry) TableName() string {
	return "reward_catalog"
}
