package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"loyaltysystem/internal/config"
	"loyaltysystem/internal/model"
	"loyaltysystem/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SeedCatalog 规则、等级、奖品表为空时用配置初始化，已有数据时不覆盖
func SeedCatalog(ctx context.Context, db *gorm.DB, cfg *config.LoyaltyConfig) error {
	ruleRepo := repository.NewRuleRepository(db)
	tierRepo := repository.NewTierRepository(db)
	rewardRepo := repository.NewRewardRepository(db)

	if count, err := ruleRepo.Count(ctx); err != nil {
		return fmt.Errorf("统计积分规则失败: %w", err)
	} else if count == 0 {
		for _, seed := range cfg.Rules {
			rule, err := ruleFromSeed(seed)
			if err != nil {
				return err
			}
			// 入库前校验，配置错误在启动时暴露
			if _, err := rule.Decode(); err != nil {
				return fmt.Errorf("初始化积分规则 %q 失败: %w", seed.Name, err)
			}
			if err := ruleRepo.Create(ctx, rule); err != nil {
				return fmt.Errorf("写入积分规则失败: %w", err)
			}
		}
		slog.Info("积分规则初始化完成", "component", "seeder", "count", len(cfg.Rules))
	}

	if count, err := tierRepo.Count(ctx); err != nil {
		return fmt.Errorf("统计会员等级失败: %w", err)
	} else if count == 0 {
		seen := make(map[int64]struct{}, len(cfg.Tiers))
		for _, seed := range cfg.Tiers {
			if _, dup := seen[seed.MinPoints]; dup {
				return fmt.Errorf("会员等级门槛重复: %d", seed.MinPoints)
			}
			seen[seed.MinPoints] = struct{}{}
			if err := tierRepo.Create(ctx, &model.Tier{Name: seed.Name, MinPoints: seed.MinPoints, Icon: seed.Icon}); err != nil {
				return fmt.Errorf("写入会员等级失败: %w", err)
			}
		}
		slog.Info("会员等级初始化完成", "component", "seeder", "count", len(cfg.Tiers))
	}

	if count, err := rewardRepo.Count(ctx); err != nil {
		return fmt.Errorf("统计奖品失败: %w", err)
	} else if count == 0 {
		for _, seed := range cfg.Rewards {
			if seed.PointCost <= 0 {
				return fmt.Errorf("奖品 %q 的积分必须大于0", seed.RewardID)
			}
			reward := &model.RewardCatalogEntry{RewardID: seed.RewardID, Name: seed.Name, PointCost: seed.PointCost}
			if err := rewardRepo.Create(ctx, reward); err != nil {
				return fmt.Errorf("写入奖品失败: %w", err)
			}
		}
		slog.Info("奖品目录初始化完成", "component", "seeder", "count", len(cfg.Rewards))
	}

	return nil
}

func ruleFromSeed(seed config.RuleSeed) (*model.RuleRecord, error) {
	rule := &model.RuleRecord{
		Name:      seed.Name,
		RuleType:  seed.RuleType,
		IsActive:  seed.IsActive,
		Points:    seed.Points,
		ProductID: seed.ProductID,
		DayOfWeek: seed.DayOfWeek,
	}

	var err error
	if rule.PerAmount, err = optionalDecimal(seed.PerAmount); err != nil {
		return nil, fmt.Errorf("规则 %q per_amount: %w", seed.Name, err)
	}
	if rule.Amount, err = optionalDecimal(seed.Amount); err != nil {
		return nil, fmt.Errorf("规则 %q amount: %w", seed.Name, err)
	}
	if rule.Multiplier, err = optionalDecimal(seed.Multiplier); err != nil {
		return nil, fmt.Errorf("规则 %q multiplier: %w", seed.Name, err)
	}
	return rule, nil
}

func optionalDecimal(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
