package models

// Actor is a row of the externally owned actor table, it is only ever read.
type Actor struct {
	ActorID   int64  `json:"actorId" gorm:"column:actor_id;primaryKey"`
	FirstName string `json:"firstName" gorm:"column:first_name"`
	LastName  string `json:"lastName" gorm:"column:last_name"`
}
