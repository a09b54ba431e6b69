package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID fills a missing primary key so inserts work on dialects without
// a server-side uuid default.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

func (g *GroupOrder) BeforeCreate(*gorm.DB) error {
	assignID(&g.ID)
	return nil
}

func (p *GroupOrderParticipant) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

func (s *SettlementFailure) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	assignID(&e.ID)
	return nil
}

func (d *DeadLetter) BeforeCreate(*gorm.DB) error {
	assignID(&d.ID)
	return nil
}

// All lists every persisted model, in dependency order, for sqlite
// AutoMigrate in tests and local runs.
func All() []any {
	return []any{
		&Product{},
		&Order{},
		&OrderItem{},
		&GroupOrder{},
		&GroupOrderParticipant{},
		&SettlementFailure{},
		&OutboxEvent{},
		&DeadLetter{},
	}
}
