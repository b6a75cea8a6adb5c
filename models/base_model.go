package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// newID fills a zero primary key before insert. Postgres could default it,
// but the value is needed in-process before the row exists.
func newID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(tx *gorm.DB) error            { newID(&u.ID); return nil }
func (c *Campaign) BeforeCreate(tx *gorm.DB) error        { newID(&c.ID); return nil }
func (c *Chainer) BeforeCreate(tx *gorm.DB) error         { newID(&c.ID); return nil }
func (d *Donation) BeforeCreate(tx *gorm.DB) error        { newID(&d.ID); return nil }
func (e *DonationEvent) BeforeCreate(tx *gorm.DB) error   { newID(&e.ID); return nil }
func (t *RecomputeTask) BeforeCreate(tx *gorm.DB) error   { newID(&t.ID); return nil }
func (p *PayoutRequest) BeforeCreate(tx *gorm.DB) error   { newID(&p.ID); return nil }
func (k *KYCVerification) BeforeCreate(tx *gorm.DB) error { newID(&k.ID); return nil }
func (w *WebhookEvent) BeforeCreate(tx *gorm.DB) error    { newID(&w.ID); return nil }
