package repository

import (
	"context"
	"errors"

	"loyaltysystem/internal/model"

	"gorm.io/gorm"
)

// RuleRepository 积分规则（只读，Create 仅用于初始化）
type RuleRepository struct {
	db *gorm.DB
}

func NewRuleRepository(db *gorm.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListActive 读取当前生效的规则，按 id 升序
func (r *RuleRepository) ListActive(ctx context.Context) ([]*model.RuleRecord, error) {
	var rules []*model.RuleRecord
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

func (r *RuleRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RuleRecord{}).Count(&count).Error
	return count, err
}

func (r *RuleRepository) Create(ctx context.Context, rule *model.RuleRecord) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

// TierRepository 会员等级表（只读）
type TierRepository struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) *TierRepository {
	return &TierRepository{db: db}
}

func (r *TierRepository) List(ctx context.Context) ([]model.Tier, error) {
	var tiers []model.Tier
	err := r.db.WithContext(ctx).Order("min_points ASC").Find(&tiers).Error
	return tiers, err
}

func (r *TierRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Tier{}).Count(&count).Error
	return count, err
}

func (r *TierRepository) Create(ctx context.Context, tier *model.Tier) error {
	return r.db.WithContext(ctx).Create(tier).Error
}

// RewardRepository 奖品目录（只读）
type RewardRepository struct {
	db *gorm.DB
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

func (r *RewardRepository) GetByRewardID(ctx context.Context, rewardID string) (*model.RewardCatalogEntry, error) {
	var reward model.RewardCatalogEntry
	err := r.db.WithContext(ctx).Where("reward_id = ?", rewardID).First(&reward).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardNotFound
		}
		return nil, err
	}
	return &reward, nil
}

func (r *RewardRepository) List(ctx context.Context) ([]*model.RewardCatalogEntry, error) {
	var rewards []*model.RewardCatalogEntry
	err := r.db.WithContext(ctx).Order("point_cost ASC, id ASC").Find(&rewards).Error
	return rewards, err
}

func (r *RewardRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.RewardCatalogEntry{}).Count(&count).Error
	return count, err
}

func (r *RewardRepository) Create(ctx context.Context, reward *model.RewardCatalogEntry) error {
	return r.db.WithContext(ctx).Create(reward).Error
}
