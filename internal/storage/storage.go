package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Vendor 记录一个被监控的商家，启动时按配置写入
type Vendor struct {
	ID      uint              `gorm:"primaryKey" json:"id"`
	Name    string            `gorm:"size:128;uniqueIndex" json:"name"`
	BaseURL string            `gorm:"size:1024" json:"baseUrl"`
	Status  string            `gorm:"size:32;index" json:"status"` // active / disabled
	Meta    datatypes.JSONMap `gorm:"type:jsonb" json:"meta"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SeenListing 已经通知过的商品，listing_key 全局唯一
type SeenListing struct {
	ID          string    `gorm:"primaryKey;size:40" json:"id"` // sha1(listing_key)
	ListingKey  string    `gorm:"size:2048;uniqueIndex;not null" json:"listingKey"`
	Vendor      string    `gorm:"size:128;index" json:"vendor"`
	FirstSeenAt time.Time `gorm:"index" json:"firstSeenAt"`
}

type InsertResult int

const (
	Inserted InsertResult = iota + 1
	AlreadyExists
)

const seenCacheTTL = 24 * time.Hour

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Vendor{}, &SeenListing{}); err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr: redisAddr,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Printf("warn: redis ping failed: %v", err)
		}
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// EnsureVendor 确保某个商家存在，已存在时更新地址和元数据
func (s *Store) EnsureVendor(name, baseURL string, meta map[string]any) (*Vendor, error) {
	v := &Vendor{}
	if err := s.DB.Where("name = ?", name).First(v).Error; err == nil {
		err = s.DB.Model(v).Updates(map[string]any{
			"base_url": baseURL,
			"meta":     datatypes.JSONMap(meta),
			"status":   "active",
		}).Error
		return v, err
	}

	v = &Vendor{
		Name:    name,
		BaseURL: baseURL,
		Status:  "active",
		Meta:    datatypes.JSONMap(meta),
	}
	if err := s.DB.Create(v).Error; err != nil {
		return nil, err
	}
	return v, nil
}

// ListVendors 返回所有启用中的商家
func (s *Store) ListVendors(ctx context.Context) ([]Vendor, error) {
	var list []Vendor
	err := s.DB.WithContext(ctx).Where("status = ?", "active").Order("name ASC").Find(&list).Error
	return list, err
}

// ListingID 以 listing_key 的 sha1 作为主键
func ListingID(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))
}

func seenCacheKey(key string) string {
	return "listing:seen:" + ListingID(key)
}

// HasListing 查询 key 是否已记录。
// 只有明确的“未找到”才返回 (false, nil)，其它错误一律返回 error，调用方据此丢弃而不是重复插入。
func (s *Store) HasListing(ctx context.Context, key string) (bool, error) {
	if s.Redis != nil {
		n, err := s.Redis.Exists(ctx, seenCacheKey(key)).Result()
		if err == nil && n > 0 {
			return true, nil
		}
	}

	var rec SeenListing
	silent := s.DB.Session(&gorm.Session{Logger: s.DB.Logger.LogMode(logger.Silent)})
	err := silent.WithContext(ctx).Where("listing_key = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.cacheSeen(ctx, key)
	return true, nil
}

// InsertIfAbsent 写入一条记录；唯一约束冲突时不报错，返回 AlreadyExists
func (s *Store) InsertIfAbsent(ctx context.Context, key, vendor string, at time.Time) (InsertResult, error) {
	rec := &SeenListing{
		ID:          ListingID(key),
		ListingKey:  key,
		Vendor:      vendor,
		FirstSeenAt: at,
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return 0, res.Error
	}

	s.cacheSeen(ctx, key)
	if res.RowsAffected == 0 {
		return AlreadyExists, nil
	}
	return Inserted, nil
}

// DeleteListing 删除一条记录并清掉缓存，返回受影响行数
func (s *Store) DeleteListing(ctx context.Context, key string) (int64, error) {
	res := s.DB.WithContext(ctx).Where("listing_key = ?", key).Delete(&SeenListing{})
	if res.Error != nil {
		return 0, res.Error
	}
	if s.Redis != nil {
		if err := s.Redis.Del(ctx, seenCacheKey(key)).Err(); err != nil {
			log.Printf("warn: redis del %s failed: %v", key, err)
		}
	}
	return res.RowsAffected, nil
}

// ListListings 按首次发现时间倒序返回记录，vendor 为空时不过滤
func (s *Store) ListListings(ctx context.Context, vendor string, limit int) ([]SeenListing, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var list []SeenListing
	db := s.DB.WithContext(ctx).Model(&SeenListing{})
	if vendor != "" {
		db = db.Where("vendor = ?", vendor)
	}
	if err := db.Order("first_seen_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// cacheSeen 写缓存失败只影响性能，不影响正确性
func (s *Store) cacheSeen(ctx context.Context, key string) {
	if s.Redis == nil {
		return
	}
	_ = s.Redis.Set(ctx, seenCacheKey(key), 1, seenCacheTTL).Err()
}

func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
