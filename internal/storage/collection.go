package storage

import (
	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/models"
)

// Collection вся коллекция учётных записей, читается и пишется целиком.
type Collection struct {
	Accounts []models.AccountRecord `json:"accounts"`
}

// Find ищет запись по нормализованному адресу почты и возвращает её индекс.
func (c *Collection) Find(email string) (int, bool) {
	key := ledger.NormalizeEmail(email)
	for i := range c.Accounts {
		if ledger.NormalizeEmail(c.Accounts[i].Email) == key {
			return i, true
		}
	}
	return -1, false
}

// Insert добавляет запись. Уникальность адреса проверяет вызывающая сторона.
func (c *Collection) Insert(rec models.AccountRecord) {
	c.Accounts = append(c.Accounts, rec)
}

// Put заменяет запись с индексом i.
func (c *Collection) Put(i int, rec models.AccountRecord) {
	c.Accounts[i] = rec
}

// Len возвращает число записей.
func (c *Collection) Len() int {
	return len(c.Accounts)
}
