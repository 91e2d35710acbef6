// Package repo ignore_security_alert_file SQL_INJECTION
package repo

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"newsletter/config"
	"newsletter/pkg/goutil"
)

type txKey struct{}

type TxService interface {
	RunTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type BaseRepo interface {
	TxService

	Create(ctx context.Context, model interface{}) error
	CreateMany(ctx context.Context, model interface{}, data interface{}) error
	// CreateIfAbsent inserts model unless it violates a unique key, and
	// reports whether a row was inserted. The check and insert are one statement.
	CreateIfAbsent(ctx context.Context, model interface{}) (bool, error)
	// Upsert inserts model or, on a unique key conflict on conflictColumns,
	// applies updates to the existing row.
	Upsert(ctx context.Context, model interface{}, conflictColumns []string, updates map[string]interface{}) error
	Get(ctx context.Context, model interface{}, f *Filter) error
	GetMany(ctx context.Context, model interface{}, f *Filter) ([]interface{}, *Pagination, error)
	Count(ctx context.Context, model interface{}, f *Filter) (uint64, error)
	// UpdateWhere applies values to the rows matching f and returns the
	// number of rows affected.
	UpdateWhere(ctx context.Context, model interface{}, f *Filter, values map[string]interface{}) (int64, error)
	AutoMigrate(ctx context.Context, models ...interface{}) error
	Close(ctx context.Context) error
}

type baseRepo struct {
	db *gorm.DB
}

func NewBaseRepo(_ context.Context, mysqlCfg config.MySQL) (BaseRepo, error) {
	db, err := gorm.Open(mysql.Open(mysqlCfg.ToDSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(mysqlCfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(mysqlCfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(mysqlCfg.ConnMaxLifetimeSeconds) * time.Second)

	return NewBaseRepoWithDB(db), nil
}

// NewBaseRepoWithDB wraps an already opened gorm handle.
func NewBaseRepoWithDB(db *gorm.DB) BaseRepo {
	return &baseRepo{
		db: db,
	}
}

func (r *baseRepo) Create(ctx context.Context, data interface{}) error {
	return r.getDb(ctx).Create(data).Error
}

func (r *baseRepo) CreateMany(ctx context.Context, model interface{}, data interface{}) error {
	return r.getDb(ctx).Model(model).Clauses(clause.OnConflict{DoNothing: true}).Create(data).Error
}

func (r *baseRepo) CreateIfAbsent(ctx context.Context, model interface{}) (bool, error) {
	res := r.getDb(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(model)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *baseRepo) Upsert(ctx context.Context, model interface{}, conflictColumns []string, updates map[string]interface{}) error {
	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, c := range conflictColumns {
		columns = append(columns, clause.Column{Name: c})
	}

	return r.getDb(ctx).Clauses(clause.OnConflict{
		Columns:   columns,
		DoUpdates: clause.Assignments(updates),
	}).Create(model).Error
}

func (r *baseRepo) Count(ctx context.Context, model interface{}, f *Filter) (uint64, error) {
	var count int64
	if err := where(r.getDb(ctx).Model(model), f).Count(&count).Error; err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func (r *baseRepo) Get(ctx context.Context, model interface{}, f *Filter) error {
	return where(r.getDb(ctx).Model(model), f).First(model).Error
}

func (r *baseRepo) GetMany(ctx context.Context, model interface{}, f *Filter) ([]interface{}, *Pagination, error) {
	query := where(r.getDb(ctx).Model(model), f)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return nil, nil, err
	}

	var pagination *Pagination
	if f != nil {
		pagination = f.Pagination
	}

	var (
		limit = pagination.GetLimit()
		page  = pagination.GetPage()
	)
	if page == 0 {
		page = 1
	}

	query = query.Offset(int((page - 1) * limit)).Order("id ASC")
	if limit > 0 {
		query = query.Limit(int(limit + 1))
	}

	var (
		modelElem = reflect.TypeOf(model).Elem()
		queryRes  = reflect.New(reflect.SliceOf(modelElem)).Interface()
	)
	if err := query.Find(queryRes).Error; err != nil {
		return nil, nil, err
	}

	var (
		resElem = reflect.ValueOf(queryRes).Elem()
		res     = make([]interface{}, resElem.Len())
	)
	for i := 0; i < resElem.Len(); i++ {
		res[i] = resElem.Index(i).Addr().Interface() // return addr
	}

	var hasNext bool
	if limit > 0 && len(res) > int(limit) {
		hasNext = true
		res = res[:limit]
	}

	return res, &Pagination{
		Page:    goutil.Uint32(page),
		Limit:   goutil.Uint32(limit),
		HasNext: goutil.Bool(hasNext),
		Total:   goutil.Int64(count),
	}, nil
}

func (r *baseRepo) UpdateWhere(ctx context.Context, model interface{}, f *Filter, values map[string]interface{}) (int64, error) {
	if f == nil || len(f.Conditions) == 0 {
		return 0, fmt.Errorf("refuse to update %T without conditions", model)
	}

	res := where(r.getDb(ctx).Model(model), f).Updates(values)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *baseRepo) AutoMigrate(ctx context.Context, models ...interface{}) error {
	return r.getDb(ctx).AutoMigrate(models...)
}

func (r *baseRepo) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.hasTx(ctx) {
		return fn(ctx)
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ctxWithTx := context.WithValue(ctx, txKey{}, tx)
		if err := fn(ctxWithTx); err != nil {
			return err
		}
		return nil
	})
}

func (r *baseRepo) Close(_ context.Context) error {
	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil {
			return err
		}

		err = sqlDB.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepo) getDb(ctx context.Context) *gorm.DB {
	db, ok := ctx.Value(txKey{}).(*gorm.DB)
	if !ok {
		db = r.db
	}
	return db.WithContext(ctx)
}

func (r *baseRepo) hasTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*gorm.DB)
	return ok
}

func where(db *gorm.DB, f *Filter) *gorm.DB {
	sqlQuery, args := ToSqlWithArgs(f)
	if sqlQuery == "" {
		return db
	}
	return db.Where(sqlQuery, args...)
}
