package repository

import (
	"context"
	"github.com/pkg/errors"
	"github.com/tony-ross/actor-messaging/models"
	"gorm.io/gorm"
)

const topActorsLimit = 10

// ActorRepository runs read-only queries against the actor table.
// All filters are exact, case-sensitive equality.
type ActorRepository struct {
	db    *gorm.DB
	table string
}

func NewActorRepository(db *gorm.DB, table string) *ActorRepository {
	return &ActorRepository{db: db, table: table}
}

func (r *ActorRepository) actors(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

func (r *ActorRepository) FindByFirstName(ctx context.Context, firstName string) ([]models.Actor, error) {
	actors := make([]models.Actor, 0)
	if err := r.actors(ctx).Where("first_name = ?", firstName).Order("actor_id").Find(&actors).Error; err != nil {
		return nil, errors.Wrap(err, "error finding actors by first name")
	}
	return actors, nil
}

func (r *ActorRepository) FindByLastName(ctx context.Context, lastName string) ([]models.Actor, error) {
	actors := make([]models.Actor, 0)
	if err := r.actors(ctx).Where("last_name = ?", lastName).Order("actor_id").Find(&actors).Error; err != nil {
		return nil, errors.Wrap(err, "error finding actors by last name")
	}
	return actors, nil
}

func (r *ActorRepository) FindByFullName(ctx context.Context, firstName string, lastName string) ([]models.Actor, error) {
	actors := make([]models.Actor, 0)
	err := r.actors(ctx).
		Where("first_name = ? AND last_name = ?", firstName, lastName).
		Order("actor_id").
		Find(&actors).
		Error
	if err != nil {
		return nil, errors.Wrap(err, "error finding actors by full name")
	}
	return actors, nil
}

func (r *ActorRepository) FindTop10(ctx context.Context) ([]models.Actor, error) {
	actors := make([]models.Actor, 0, topActorsLimit)
	if err := r.actors(ctx).Order("actor_id ASC").Limit(topActorsLimit).Find(&actors).Error; err != nil {
		return nil, errors.Wrap(err, "error finding top actors")
	}
	return actors, nil
}

func (r *ActorRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.actors(ctx).Count(&count).Error; err != nil {
		return 0, errors.Wrap(err, "error counting actors")
	}
	return count, nil
}

func (r *ActorRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
